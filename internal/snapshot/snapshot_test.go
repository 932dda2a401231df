package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/inplay-odds/internal/api"
	"github.com/rickgao/inplay-odds/internal/clock"
	"github.com/rickgao/inplay-odds/internal/model"
)

func TestBuildSubscriptions(t *testing.T) {
	matches := []model.Match{
		{ID: "e1", Markets: []model.MarketSummary{{MarketID: "m1"}, {MarketID: "m2"}}},
		{ID: "e2", Markets: nil},
		{ID: "e3", Markets: []model.MarketSummary{{MarketID: "m3"}, {MarketID: "m3"}}},
	}

	got := BuildSubscriptions(matches, "")

	want := []model.Subscription{
		{MarketID: "m1", EventID: "e1", ApplicationType: "WEB"},
		{MarketID: "m2", EventID: "e1", ApplicationType: "WEB"},
		{MarketID: "m3", EventID: "e3", ApplicationType: "WEB"},
		{MarketID: "m3", EventID: "e3", ApplicationType: "WEB"},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subs[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildSubscriptions_Empty(t *testing.T) {
	got := BuildSubscriptions(nil, "APP")
	if got == nil || len(got) != 0 {
		t.Errorf("BuildSubscriptions(nil) = %v, want empty non-nil", got)
	}
}

// scriptedFetcher returns queued results in order and then blocks until ctx
// is done.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

type fetchResult struct {
	resp *api.SnapshotResponse
	err  error
}

func (f *scriptedFetcher) GetSnapshot(ctx context.Context) (*api.SnapshotResponse, error) {
	f.mu.Lock()
	f.calls++
	if len(f.results) > 0 {
		r := f.results[0]
		f.results = f.results[1:]
		f.mu.Unlock()
		return r.resp, r.err
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *scriptedFetcher) push(r fetchResult) {
	f.mu.Lock()
	f.results = append(f.results, r)
	f.mu.Unlock()
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failure struct {
	err     error
	attempt int
	retryIn time.Duration
}

type recordingHandler struct {
	loaded chan Snapshot
	failed chan failure
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		loaded: make(chan Snapshot, 10),
		failed: make(chan failure, 10),
	}
}

func (h *recordingHandler) HandleSnapshot(s Snapshot) { h.loaded <- s }

func (h *recordingHandler) HandleSnapshotError(err error, attempt int, retryIn time.Duration) {
	h.failed <- failure{err: err, attempt: attempt, retryIn: retryIn}
}

func okResponse() *api.SnapshotResponse {
	return &api.SnapshotResponse{
		Matches: []model.Match{
			{ID: "e1", Markets: []model.MarketSummary{{MarketID: "m1"}}},
		},
		Endpoints: []api.Endpoint{{URL: "wss://stream.example.com/ws"}},
	}
}

func startLoader(t *testing.T, f Fetcher, h Handler, clk clock.Clock) *Loader {
	t.Helper()
	l := New(DefaultConfig(), f, h, clk, nil, nil)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Stop(ctx)
	})
	return l
}

func TestLoader_Success(t *testing.T) {
	f := &scriptedFetcher{}
	f.push(fetchResult{resp: okResponse()})
	h := newRecordingHandler()

	startLoader(t, f, h, clock.NewFake(time.Unix(0, 0)))

	s := waitLoaded(t, h)
	if s.Endpoint != "wss://stream.example.com/ws" {
		t.Errorf("Endpoint = %q, want %q", s.Endpoint, "wss://stream.example.com/ws")
	}
	if len(s.Subscriptions) != 1 || s.Subscriptions[0].MarketID != "m1" || s.Subscriptions[0].EventID != "e1" {
		t.Errorf("Subscriptions = %+v, want one m1/e1", s.Subscriptions)
	}
}

func TestLoader_NoEndpoint(t *testing.T) {
	f := &scriptedFetcher{}
	f.push(fetchResult{resp: &api.SnapshotResponse{Matches: []model.Match{}}})
	h := newRecordingHandler()

	startLoader(t, f, h, clock.NewFake(time.Unix(0, 0)))

	if s := waitLoaded(t, h); s.Endpoint != "" {
		t.Errorf("Endpoint = %q, want empty", s.Endpoint)
	}
}

func TestLoader_RetriesWithBackoff(t *testing.T) {
	boom := errors.New("connection refused")
	f := &scriptedFetcher{}
	for i := 0; i < 6; i++ {
		f.push(fetchResult{err: boom})
	}
	f.push(fetchResult{resp: okResponse()})

	h := newRecordingHandler()
	fake := clock.NewFake(time.Unix(0, 0))
	startLoader(t, f, h, fake)

	wantDelays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
	}

	for i, want := range wantDelays {
		fl := waitFailed(t, h)
		if !errors.Is(fl.err, boom) {
			t.Errorf("failure %d err = %v, want %v", i, fl.err, boom)
		}
		if fl.attempt != i {
			t.Errorf("failure %d attempt = %d, want %d", i, fl.attempt, i)
		}
		if fl.retryIn != want {
			t.Errorf("failure %d retryIn = %v, want %v", i, fl.retryIn, want)
		}

		// The retry timer is registered before the handler is told.
		next, ok := fake.NextDeadline()
		if !ok || next != want {
			t.Fatalf("next deadline = %v (%v), want %v", next, ok, want)
		}

		fake.Advance(want - time.Millisecond)
		if n := f.callCount(); n != i+1 {
			t.Fatalf("fetch retried early: calls = %d, want %d", n, i+1)
		}
		fake.Advance(time.Millisecond)
	}

	waitLoaded(t, h)
	if n := f.callCount(); n != 7 {
		t.Errorf("calls = %d, want 7", n)
	}
}

func TestLoader_RefreshRestartsFromAttemptZero(t *testing.T) {
	boom := errors.New("503")
	f := &scriptedFetcher{}
	f.push(fetchResult{err: boom})
	f.push(fetchResult{err: boom})

	h := newRecordingHandler()
	fake := clock.NewFake(time.Unix(0, 0))
	l := startLoader(t, f, h, fake)

	waitFailed(t, h)
	fake.Advance(time.Second)
	if fl := waitFailed(t, h); fl.attempt != 1 {
		t.Fatalf("attempt = %d, want 1", fl.attempt)
	}

	f.push(fetchResult{err: boom})
	l.Refresh()

	fl := waitFailed(t, h)
	if fl.attempt != 0 {
		t.Errorf("attempt after refresh = %d, want 0", fl.attempt)
	}
	if fl.retryIn != time.Second {
		t.Errorf("retryIn after refresh = %v, want %v", fl.retryIn, time.Second)
	}
}

func TestLoader_RefreshAfterSuccessReloads(t *testing.T) {
	f := &scriptedFetcher{}
	f.push(fetchResult{resp: okResponse()})
	h := newRecordingHandler()
	l := startLoader(t, f, h, clock.NewFake(time.Unix(0, 0)))

	waitLoaded(t, h)

	f.push(fetchResult{resp: &api.SnapshotResponse{Matches: []model.Match{}}})
	l.Refresh()

	s := waitLoaded(t, h)
	if len(s.Matches) != 0 {
		t.Errorf("Matches = %v, want empty after refresh", s.Matches)
	}
}

func TestLoader_StopInterruptsWait(t *testing.T) {
	f := &scriptedFetcher{}
	f.push(fetchResult{err: errors.New("down")})
	h := newRecordingHandler()
	fake := clock.NewFake(time.Unix(0, 0))

	l := New(DefaultConfig(), f, h, fake, nil, nil)
	l.Start(context.Background())
	waitFailed(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if fake.Pending() != 0 {
		t.Errorf("Pending timers = %d, want 0 after Stop", fake.Pending())
	}
}

func TestLoader_StopInterruptsRequest(t *testing.T) {
	f := &scriptedFetcher{} // blocks until ctx is cancelled
	h := newRecordingHandler()

	l := New(DefaultConfig(), f, h, clock.NewFake(time.Unix(0, 0)), nil, nil)
	l.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for f.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case fl := <-h.failed:
		t.Errorf("unexpected failure reported after Stop: %v", fl.err)
	default:
	}
}

func waitLoaded(t *testing.T, h *recordingHandler) Snapshot {
	t.Helper()
	select {
	case s := <-h.loaded:
		return s
	case fl := <-h.failed:
		t.Fatalf("unexpected failure: %v", fl.err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return Snapshot{}
}

func waitFailed(t *testing.T, h *recordingHandler) failure {
	t.Helper()
	select {
	case fl := <-h.failed:
		return fl
	case <-h.loaded:
		t.Fatal("unexpected snapshot")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for failure")
	}
	return failure{}
}
