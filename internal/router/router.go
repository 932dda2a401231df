package router

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/inplay-odds/internal/metrics"
	"github.com/rickgao/inplay-odds/internal/model"
)

// warnMinLength is the frame length above which decode failures are logged
// as warnings. Shorter frames are transport chatter such as "o" or "h".
const warnMinLength = 10

// UpdateHandler receives decoded market updates in arrival order.
type UpdateHandler interface {
	HandleUpdate(u model.MarketUpdate, receivedAt time.Time) error
}

// UpdateHandlerFunc is a function adapter for UpdateHandler.
type UpdateHandlerFunc func(model.MarketUpdate, time.Time) error

func (f UpdateHandlerFunc) HandleUpdate(u model.MarketUpdate, receivedAt time.Time) error {
	return f(u, receivedAt)
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived   int64
	EnvelopesDecoded int64
	ParseErrors      int64
	UpdatesRejected  int64
	UpdatesApplied   int64
}

// Router decodes frames and forwards each envelope to an UpdateHandler. It
// is called from a single read goroutine; Stats may be read concurrently.
type Router struct {
	handler UpdateHandler
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	received int64
	decoded  int64
	errors   int64
	rejected int64
	applied  int64
}

// New creates a new Router. m may be nil.
func New(handler UpdateHandler, m *metrics.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handler: handler,
		metrics: m,
		logger:  logger,
	}
}

// HandleFrame decodes one frame and forwards its envelopes. Errors are
// counted and logged, never returned, so a bad frame cannot stop the stream.
func (r *Router) HandleFrame(data []byte, receivedAt time.Time) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()
	r.metrics.FrameReceived()

	envelopes, err := Decode(data)
	if err != nil {
		r.parseError()
		if len(data) > warnMinLength {
			r.logger.Warn("failed to parse stream frame", "error", err, "length", len(data))
		} else {
			r.logger.Debug("ignoring short frame", "frame", string(data))
		}
		return
	}

	r.mu.Lock()
	r.decoded += int64(len(envelopes))
	r.mu.Unlock()
	r.metrics.EnvelopesDecoded(len(envelopes))

	for _, env := range envelopes {
		var u model.MarketUpdate
		if err := json.Unmarshal(env, &u); err != nil {
			r.parseError()
			r.logger.Warn("failed to decode market update", "error", err)
			continue
		}
		r.forward(u, receivedAt)
	}
}

func (r *Router) forward(u model.MarketUpdate, receivedAt time.Time) {
	err := r.handler.HandleUpdate(u, receivedAt)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.rejected++
		r.logger.Debug("market update rejected", "error", err)
		return
	}
	r.applied++
}

func (r *Router) parseError() {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
	r.metrics.DecodeError()
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		FramesReceived:   r.received,
		EnvelopesDecoded: r.decoded,
		ParseErrors:      r.errors,
		UpdatesRejected:  r.rejected,
		UpdatesApplied:   r.applied,
	}
}
