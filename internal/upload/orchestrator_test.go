package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momofeed/internal/feed"
	"momofeed/internal/gateway"
	"momofeed/internal/moderation"
)

type fakeGateway struct {
	mu          sync.Mutex
	slotErr     error
	putErr      error
	putDelay    time.Duration
	statusFn    func(attempt int) (*feed.Item, error)
	statusCalls int
	listPage    feed.Page
	listErr     error
	listCalls   int
}

func (f *fakeGateway) RequestUploadSlot(ctx context.Context, contentType string) (gateway.UploadSlot, error) {
	if f.slotErr != nil {
		return gateway.UploadSlot{}, f.slotErr
	}
	return gateway.UploadSlot{UploadURL: "https://storage.example/put/abc123", FileID: "abc123"}, nil
}

func (f *fakeGateway) PutBytes(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	if f.putDelay > 0 {
		time.Sleep(f.putDelay)
	}
	return f.putErr
}

func (f *fakeGateway) GetItemStatus(ctx context.Context, key string) (*feed.Item, error) {
	f.mu.Lock()
	f.statusCalls++
	attempt := f.statusCalls
	f.mu.Unlock()
	return f.statusFn(attempt)
}

func (f *fakeGateway) ListFeedSince(ctx context.Context, after *float64) (feed.Page, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	return f.listPage, f.listErr
}

func (f *fakeGateway) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func testConfig() Config {
	return Config{
		ProgressTick:    time.Millisecond,
		ProgressStep:    10,
		ProgressCeiling: 90,
		StepScanDelay:   5 * time.Millisecond,
		StepTagDelay:    10 * time.Millisecond,
		PollInterval:    2 * time.Millisecond,
		MaxPollAttempts: 60,
		DismissDelay:    time.Millisecond,
	}
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func terminalAt(attempt int, status moderation.Status, reason moderation.Reason) func(int) (*feed.Item, error) {
	return func(n int) (*feed.Item, error) {
		if n < attempt {
			return nil, nil
		}
		return &feed.Item{ID: "abc123", Status: status, Reason: reason, Timestamp: 100}, nil
	}
}

func TestUploadHappyPath(t *testing.T) {
	gw := &fakeGateway{
		putDelay: 30 * time.Millisecond,
		statusFn: terminalAt(5, moderation.StatusApproved, moderation.ReasonMomo),
		listPage: feed.Page{Stats: &feed.Stats{Total: 3, Approved: 2}},
	}
	store := feed.NewStore()
	rec := &recorder{}

	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())
	o.Notify = rec.record

	require.NoError(t, o.Upload(context.Background(), bytes.NewReader([]byte("png")), "image/png", 3))

	// Feed head is the resolved item.
	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "abc123", items[0].ID)
	assert.Equal(t, moderation.StatusApproved, items[0].Status)
	assert.Equal(t, 5, gw.attempts(), "polling stops on the first terminal result")

	// Progress is monotonic, capped below 100 until the transfer
	// completes, and hits exactly 100 no later than step 2.
	states := rec.snapshot()
	require.NotEmpty(t, states)
	prev := 0
	for _, s := range states {
		require.GreaterOrEqual(t, s.UploadProgress, prev)
		prev = s.UploadProgress
		if s.Step < StepTrigger {
			require.LessOrEqual(t, s.UploadProgress, 90)
		}
		if s.Step >= StepTrigger {
			require.Equal(t, 100, s.UploadProgress)
		}
	}

	final := o.State()
	assert.Equal(t, StepDone, final.Step)
	assert.Equal(t, moderation.StatusApproved, final.FinalStatus)
	assert.Equal(t, moderation.ReasonMomo, final.Reason)

	// The fire-and-forget stats refresh lands shortly after.
	require.Eventually(t, func() bool {
		return store.Stats().Approved == 2
	}, time.Second, 5*time.Millisecond)
}

func TestUploadBlockedNeverEntersFeed(t *testing.T) {
	gw := &fakeGateway{
		statusFn: terminalAt(1, moderation.StatusBlocked, moderation.ReasonUnsafeContent),
	}
	store := feed.NewStore()

	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())
	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))

	// The uploader sees the verdict, the feed does not.
	state := o.State()
	assert.Equal(t, moderation.StatusBlocked, state.FinalStatus)
	assert.Equal(t, moderation.ReasonUnsafeContent, state.Reason)
	assert.Equal(t, 0, store.Len())
}

func TestUploadBlurredAfterNotReadyAttempts(t *testing.T) {
	gw := &fakeGateway{
		statusFn: terminalAt(5, moderation.StatusBlurred, moderation.ReasonHumanDetected),
	}
	store := feed.NewStore()

	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())
	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))

	assert.Equal(t, 5, gw.attempts())
	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, moderation.StatusBlurred, items[0].Status)
	assert.Equal(t, moderation.ReasonHumanDetected, items[0].Reason)
}

func TestUploadSecondFlightRejected(t *testing.T) {
	gw := &fakeGateway{
		putDelay: 100 * time.Millisecond,
		statusFn: terminalAt(1, moderation.StatusApproved, moderation.ReasonMomo),
	}
	store := feed.NewStore()
	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0)
	}()

	require.Eventually(t, func() bool {
		return o.State().Active
	}, time.Second, time.Millisecond)

	err := o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0)
	assert.ErrorIs(t, err, ErrUploadInFlight)

	require.NoError(t, <-done)
}

func TestUploadSlotFailureLeavesNoState(t *testing.T) {
	gw := &fakeGateway{slotErr: &gateway.GatewayError{Op: "generate-presigned-url", StatusCode: 500}}
	store := feed.NewStore()
	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())

	err := o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0)
	require.Error(t, err)

	var gwErr *gateway.GatewayError
	assert.ErrorAs(t, err, &gwErr)
	assert.Equal(t, State{}, o.State(), "no partial processing state survives an aborted flow")
	assert.Equal(t, 0, store.Len())

	// A fresh flight can start immediately.
	gw.slotErr = nil
	gw.statusFn = terminalAt(1, moderation.StatusApproved, moderation.ReasonMomo)
	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))
}

func TestUploadTransferFailureLeavesNoState(t *testing.T) {
	gw := &fakeGateway{putErr: &gateway.UploadError{StatusCode: 403}}
	store := feed.NewStore()
	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())

	err := o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0)
	require.Error(t, err)

	var upErr *gateway.UploadError
	assert.ErrorAs(t, err, &upErr)
	assert.Equal(t, State{}, o.State())
	assert.Equal(t, 0, store.Len())
}

func TestUploadPollTimeoutIsSilent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPollAttempts = 3

	gw := &fakeGateway{
		statusFn: func(int) (*feed.Item, error) { return nil, nil },
	}
	store := feed.NewStore()
	o := NewOrchestrator(gw, store, cfg, zerolog.Nop())

	// Exceeding the cap is not an error; the synchronizer may still
	// pick the item up later.
	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))
	assert.Equal(t, 3, gw.attempts())
	assert.Equal(t, 0, store.Len())
}

func TestUploadPollErrorsAreRetried(t *testing.T) {
	gw := &fakeGateway{
		statusFn: func(n int) (*feed.Item, error) {
			if n < 3 {
				return nil, errors.New("transient")
			}
			return &feed.Item{ID: "abc123", Status: moderation.StatusApproved}, nil
		},
	}
	store := feed.NewStore()
	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())

	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))
	assert.Equal(t, 1, store.Len())
}

func TestLateCosmeticTimerCannotRegressFinalState(t *testing.T) {
	cfg := testConfig()
	cfg.StepScanDelay = 40 * time.Millisecond
	cfg.StepTagDelay = 60 * time.Millisecond

	gw := &fakeGateway{
		statusFn: terminalAt(1, moderation.StatusApproved, moderation.ReasonMomo),
	}
	store := feed.NewStore()
	o := NewOrchestrator(gw, store, cfg, zerolog.Nop())

	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))
	require.Equal(t, StepDone, o.State().Step)

	// Let both cosmetic timers fire after resolution; they must no-op.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StepDone, o.State().Step)
	assert.Equal(t, moderation.StatusApproved, o.State().FinalStatus)
}

func TestDismissClearsStateAfterGraceDelay(t *testing.T) {
	gw := &fakeGateway{
		statusFn: terminalAt(1, moderation.StatusApproved, moderation.ReasonMomo),
	}
	store := feed.NewStore()
	rec := &recorder{}
	o := NewOrchestrator(gw, store, testConfig(), zerolog.Nop())
	o.Notify = rec.record

	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))

	o.Dismiss()
	emitted := len(rec.snapshot())

	require.Eventually(t, func() bool {
		return o.State() == State{}
	}, time.Second, time.Millisecond)

	// Emission stopped at dismissal; clearing the state is silent.
	assert.Equal(t, emitted, len(rec.snapshot()))

	// The next upload starts from a clean slate.
	require.NoError(t, o.Upload(context.Background(), bytes.NewReader(nil), "image/png", 0))
	assert.Equal(t, StepDone, o.State().Step)
}
