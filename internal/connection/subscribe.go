package connection

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rickgao/inplay-odds/internal/model"
)

// EncodeSubscriptions frames the subscription list the way the stream
// expects it: a one-element JSON array whose element is the JSON encoding of
// the list, as a string. HTML characters are not escaped.
//
//	[{"marketId":"1.2","eventId":"3","applicationType":"WEB"}]
//	=> ["[{\"marketId\":\"1.2\",\"eventId\":\"3\",\"applicationType\":\"WEB\"}]"]
//
// An empty list encodes to nil: there is nothing to send.
func EncodeSubscriptions(subs []model.Subscription) ([]byte, error) {
	if len(subs) == 0 {
		return nil, nil
	}

	inner, err := marshalNoEscape(subs)
	if err != nil {
		return nil, fmt.Errorf("encode subscriptions: %w", err)
	}
	quoted, err := marshalNoEscape(string(inner))
	if err != nil {
		return nil, fmt.Errorf("quote subscriptions: %w", err)
	}

	out := make([]byte, 0, len(quoted)+2)
	out = append(out, '[')
	out = append(out, quoted...)
	out = append(out, ']')
	return out, nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
