package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// HeartbeatMarker is the single-byte prefix the feed may put before a frame.
const HeartbeatMarker = 'a'

// Decode errors.
var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrInvalidJSON = errors.New("invalid json frame")
)

// Decode normalizes one stream frame into market envelopes, in frame order.
//
// Exactly one leading 'a' is stripped. An array frame has its string elements
// re-parsed as JSON (strings that are not JSON stay strings) and then every
// element that is not a JSON object is dropped. A top-level object is the sole
// envelope. Any other top-level value yields no envelopes and no error.
func Decode(frame []byte) ([]json.RawMessage, error) {
	if len(frame) > 0 && frame[0] == HeartbeatMarker {
		frame = frame[1:]
	}

	body := bytes.TrimSpace(frame)
	if len(body) == 0 {
		return nil, ErrEmptyFrame
	}
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}

	switch body[0] {
	case '{':
		return []json.RawMessage{json.RawMessage(body)}, nil
	case '[':
		return decodeArray(body)
	default:
		return nil, nil
	}
}

func decodeArray(body []byte) ([]json.RawMessage, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, fmt.Errorf("decode frame array: %w", err)
	}

	out := make([]json.RawMessage, 0, len(elems))
	for _, el := range elems {
		el = unwrapString(el)
		if isObject(el) {
			out = append(out, el)
		}
	}
	return out, nil
}

// unwrapString returns the JSON held inside a string element, or el unchanged
// if el is not a string or its content is not valid JSON.
func unwrapString(el json.RawMessage) json.RawMessage {
	el = bytes.TrimSpace(el)
	if len(el) == 0 || el[0] != '"' {
		return el
	}
	var s string
	if err := json.Unmarshal(el, &s); err != nil {
		return el
	}
	inner := bytes.TrimSpace([]byte(s))
	if len(inner) == 0 || !json.Valid(inner) {
		return el
	}
	return inner
}

func isObject(el json.RawMessage) bool {
	return len(el) > 0 && el[0] == '{'
}
