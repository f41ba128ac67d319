package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momofeed/internal/feed"
	"momofeed/internal/gateway"
	"momofeed/internal/moderation"
)

// Display steps of an in-flight upload.
const (
	StepUpload  = 1 // transferring bytes to storage
	StepTrigger = 2 // pipeline event fired
	StepScan    = 3 // content scan
	StepTag     = 4 // verdict tagging
	StepDone    = 5 // final status available
)

// ErrUploadInFlight is returned when an upload is started while
// another one is still active. The upload surface allows exactly one.
var ErrUploadInFlight = errors.New("an upload is already in flight")

// State is the processing view the presentation layer renders. It
// exists only while an upload is in flight and is read-only outside
// this package.
type State struct {
	Active         bool
	Step           int
	UploadProgress int
	FinalStatus    moderation.Status
	Reason         moderation.Reason
}

// Gateway is the slice of the remote API the orchestrator drives.
type Gateway interface {
	RequestUploadSlot(ctx context.Context, contentType string) (gateway.UploadSlot, error)
	PutBytes(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error
	GetItemStatus(ctx context.Context, key string) (*feed.Item, error)
	ListFeedSince(ctx context.Context, after *float64) (feed.Page, error)
}

// Config holds the pacing knobs of the flow. The progress ticks and
// the scan/tag step delays are purely cosmetic: they model backend
// stages the client cannot observe.
type Config struct {
	ProgressTick    time.Duration
	ProgressStep    int
	ProgressCeiling int
	StepScanDelay   time.Duration
	StepTagDelay    time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	DismissDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ProgressTick:    100 * time.Millisecond,
		ProgressStep:    10,
		ProgressCeiling: 90,
		StepScanDelay:   1500 * time.Millisecond,
		StepTagDelay:    6 * time.Second,
		PollInterval:    time.Second,
		MaxPollAttempts: 60,
		DismissDelay:    300 * time.Millisecond,
	}
}

// Orchestrator drives a single upload through slot acquisition, the
// storage PUT, simulated stage progression and bounded status
// polling. It owns the processing state and is the only writer of it.
type Orchestrator struct {
	gw    Gateway
	store *feed.Store
	cfg   Config
	log   zerolog.Logger

	mu        sync.Mutex
	state     State
	active    bool
	dismissed bool
	// gen invalidates late timer and poll callbacks after a reset.
	// Timers cannot be perfectly cancelled across all code paths, so
	// every deferred mutation re-checks it.
	gen    int
	timers []*time.Timer

	// emitMu serializes listener notifications so snapshots arrive in
	// mutation order.
	emitMu sync.Mutex

	// Notify, when set, receives a state snapshot after every
	// mutation. Emission stops as soon as the surface is dismissed.
	// The callback must not call back into the orchestrator.
	Notify func(State)
}

func NewOrchestrator(gw Gateway, store *feed.Store, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		gw:    gw,
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "orchestrator").Logger(),
	}
}

// State returns a snapshot of the current processing state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Upload runs the whole flow and blocks until the item resolves, the
// poll cap expires, or an early phase fails. Slot and transfer
// failures abort with a user-facing error and leave no partial state
// behind. A silent poll timeout is not an error.
func (o *Orchestrator) Upload(ctx context.Context, body io.Reader, contentType string, size int64) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return ErrUploadInFlight
	}
	o.active = true
	o.dismissed = false
	o.state = State{Active: true, Step: StepUpload}
	gen := o.gen
	o.mu.Unlock()
	o.emit()

	slot, err := o.gw.RequestUploadSlot(ctx, contentType)
	if err != nil {
		o.reset()
		return fmt.Errorf("request upload slot: %w", err)
	}
	o.log.Info().Str("file_id", slot.FileID).Msg("upload slot granted")

	stopTicks := o.startProgressTicks(gen)
	err = o.gw.PutBytes(ctx, slot.UploadURL, contentType, body, size)
	stopTicks()
	if err != nil {
		o.reset()
		return fmt.Errorf("upload image: %w", err)
	}

	o.completeTransfer(gen)

	o.scheduleCosmeticStep(gen, StepScan, o.cfg.StepScanDelay)
	o.scheduleCosmeticStep(gen, StepTag, o.cfg.StepTagDelay)

	item, ok := pollUntil(ctx, func(ctx context.Context) (*feed.Item, error) {
		return o.gw.GetItemStatus(ctx, slot.FileID)
	}, o.cfg.PollInterval, o.cfg.MaxPollAttempts, o.log)
	if !ok {
		o.log.Warn().Str("file_id", slot.FileID).Msg("status polling timed out; item may still resolve via feed sync")
		return nil
	}

	o.resolve(gen, *item)
	return nil
}

// Dismiss closes the upload surface. Emission stops immediately; the
// state itself is cleared after a short grace delay so a terminal
// animation can finish, and the next upload starts clean.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	o.dismissed = true
	o.mu.Unlock()

	time.AfterFunc(o.cfg.DismissDelay, o.reset)
}

// startProgressTicks emits synthetic monotonic progress while the
// transfer is in flight. The value is perceived-progress feedback
// only, never real transfer telemetry, and it stays at the ceiling
// until the PUT genuinely returns.
func (o *Orchestrator) startProgressTicks(gen int) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(o.cfg.ProgressTick)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				o.mu.Lock()
				if o.gen != gen || o.state.UploadProgress >= o.cfg.ProgressCeiling {
					o.mu.Unlock()
					continue
				}
				o.state.UploadProgress += o.cfg.ProgressStep
				if o.state.UploadProgress > o.cfg.ProgressCeiling {
					o.state.UploadProgress = o.cfg.ProgressCeiling
				}
				o.mu.Unlock()
				o.emit()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (o *Orchestrator) completeTransfer(gen int) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.state.UploadProgress = 100
	o.state.Step = StepTrigger
	o.mu.Unlock()
	o.emit()
}

// scheduleCosmeticStep advances the displayed step after a fixed
// delay. The callback no-ops once a terminal result has been
// recorded: a late cosmetic tick must never walk the tracker
// backwards from the final state.
func (o *Orchestrator) scheduleCosmeticStep(gen, step int, delay time.Duration) {
	t := time.AfterFunc(delay, func() {
		o.mu.Lock()
		if o.gen != gen || !o.state.Active || o.state.FinalStatus != "" {
			o.mu.Unlock()
			return
		}
		if step > o.state.Step {
			o.state.Step = step
		}
		o.mu.Unlock()
		o.emit()
	})

	o.mu.Lock()
	o.timers = append(o.timers, t)
	o.mu.Unlock()
}

// resolve records the terminal verdict. The first terminal result
// wins; anything arriving later is dropped. Non-blocked items go to
// the head of the feed, and a stats refresh is fired off best-effort.
func (o *Orchestrator) resolve(gen int, item feed.Item) {
	o.mu.Lock()
	if o.gen != gen || o.state.FinalStatus != "" {
		o.mu.Unlock()
		return
	}
	o.state.Step = StepDone
	o.state.FinalStatus = item.Status
	o.state.Reason = item.Reason
	o.mu.Unlock()

	o.log.Info().
		Str("item_id", item.ID).
		Str("status", string(item.Status)).
		Str("reason", string(item.Reason)).
		Msg("upload resolved")

	if item.Status != moderation.StatusBlocked {
		o.store.InsertNewest(item)
	}

	go o.refreshStats()
	o.emit()
}

func (o *Orchestrator) refreshStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, err := o.gw.ListFeedSince(ctx, nil)
	if err != nil {
		o.log.Warn().Err(err).Msg("stats refresh failed")
		return
	}
	if page.Stats != nil {
		o.store.ReplaceStats(*page.Stats)
	}
}

func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.gen++
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = nil
	o.state = State{}
	o.active = false
	o.dismissed = false
	o.mu.Unlock()
}

func (o *Orchestrator) emit() {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	notify := o.Notify
	suppressed := o.dismissed || notify == nil
	snapshot := o.state
	o.mu.Unlock()

	if !suppressed {
		notify(snapshot)
	}
}
