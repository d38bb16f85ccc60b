package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-handscore/internal/scoring"
)

// Update is pushed to subscribers on every score and every state change.
// Score is nil for pure state changes.
type Update struct {
	Score    *scoring.Score `json:"score,omitempty"`
	Snapshot Snapshot       `json:"session"`
}

// queued is an observation tagged with the control epoch it was read in
type queued struct {
	obs   Observation
	epoch uint64
}

// Runner drives a Controller from a Source. Acquisition runs on its own
// goroutine and hands observations to the scoring loop through a bounded
// queue, so a slow tick never stalls the source.
type Runner struct {
	source Source
	cfg    RunnerConfig
	logger *slog.Logger

	mu      sync.RWMutex
	ctrl    *Controller
	latest  *scoring.Score
	history []scoring.Score
	epoch   uint64 // bumped by Start, Stop and Reset

	// Metrics
	ticks        int64
	observations int64
	missing      int64
	sourceErrors int64
	dropped      int64
	stale        int64
	scores       int64
	scoreErrors  int64
	totalScoreNs int64

	// Lifecycle
	cancel context.CancelFunc
	done   chan struct{}

	// Subscribers for real-time updates
	subsMu sync.RWMutex
	subs   map[chan Update]struct{}
}

// NewRunner creates a runner around ctrl
func NewRunner(source Source, ctrl *Controller, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 1
	}

	return &Runner{
		source:  source,
		cfg:     cfg,
		logger:  logger,
		ctrl:    ctrl,
		history: make([]scoring.Score, 0, cfg.HistorySize),
		done:    make(chan struct{}),
		subs:    make(map[chan Update]struct{}),
	}
}

// Run starts acquisition and scoring (blocking, use goroutine)
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(r.done)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	queue := make(chan queued, r.cfg.QueueSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.acquire(ctx, queue)
	}()

	r.logger.Info("runner started",
		"poll_interval", r.cfg.PollInterval,
		"queue_size", r.cfg.QueueSize,
		"source", r.source.Name(),
	)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.mu.RLock()
			r.logger.Info("runner stopped",
				"ticks", r.ticks,
				"scores", r.scores,
				"source_errors", r.sourceErrors,
				"dropped", r.dropped,
			)
			r.mu.RUnlock()
			return ctx.Err()
		case q := <-queue:
			r.apply(q.obs, q.epoch, true)
		}
	}
}

func (r *Runner) acquire(ctx context.Context, queue chan<- queued) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.RLock()
		epoch := r.epoch
		r.mu.RUnlock()

		obs, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.mu.Lock()
			r.sourceErrors++
			r.mu.Unlock()
			r.logger.Warn("source read failed", "source", r.source.Name(), "error", err)
			obs = Missing(time.Now())
		}
		if obs.Timestamp.IsZero() {
			obs.Timestamp = time.Now()
		}

		select {
		case queue <- queued{obs: obs, epoch: epoch}:
		default:
			// Scoring is behind; drop rather than block acquisition
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
		}
	}
}

// Apply runs one tick synchronously. Offline replay and tests call it
// directly; Run applies queued observations the same way.
func (r *Runner) Apply(obs Observation) (scoring.Score, bool) {
	return r.apply(obs, 0, false)
}

// apply runs one tick. A tagged observation read before the latest
// Start, Stop or Reset is discarded without ticking the controller.
func (r *Runner) apply(obs Observation, epoch uint64, tagged bool) (scoring.Score, bool) {
	start := time.Now()

	r.mu.Lock()
	if tagged && epoch != r.epoch {
		r.stale++
		r.mu.Unlock()
		return scoring.Score{}, false
	}
	prevState := r.ctrl.State()
	score, ok, err := r.ctrl.Observe(obs)

	r.ticks++
	if obs.Present() {
		r.observations++
	} else {
		r.missing++
	}
	if err != nil {
		r.scoreErrors++
	}
	if ok {
		r.scores++
		r.totalScoreNs += time.Since(start).Nanoseconds()
		r.latest = &score
		r.appendHistory(score)
	}
	changed := r.ctrl.State() != prevState
	snap := r.ctrl.Snapshot()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("scoring failed", "error", err)
	}
	if changed {
		r.logger.Info("session state changed", "from", prevState, "to", snap.State, "session_id", snap.SessionID)
	}

	if ok {
		r.notify(Update{Score: &score, Snapshot: snap})
		if snap.FrameIndex%100 == 0 {
			r.logger.Debug("score",
				"combined", score.Combined,
				"sequence", score.Sequence,
				"instantaneous", score.Instantaneous,
				"distance", score.RawDistance,
				"reference_index", score.ReferenceIndex,
			)
		}
	} else if changed {
		r.notify(Update{Snapshot: snap})
	}
	return score, ok
}

// Start begins a new calibration episode and returns its session ID
func (r *Runner) Start() string {
	r.mu.Lock()
	id := r.ctrl.Start()
	r.epoch++
	snap := r.ctrl.Snapshot()
	r.mu.Unlock()

	r.logger.Info("session started", "session_id", id)
	r.notify(Update{Snapshot: snap})
	return id
}

// Stop ends the current episode. Takes effect before the next observation.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.ctrl.Stop()
	r.epoch++
	snap := r.ctrl.Snapshot()
	r.mu.Unlock()

	r.logger.Info("session stopped")
	r.notify(Update{Snapshot: snap})
}

// Reset stops the episode, rewinds the frame counter and forgets scores
func (r *Runner) Reset() {
	r.mu.Lock()
	r.ctrl.Reset()
	r.epoch++
	r.latest = nil
	r.history = r.history[:0]
	snap := r.ctrl.Snapshot()
	r.mu.Unlock()

	r.logger.Info("session reset")
	r.notify(Update{Snapshot: snap})
}

func (r *Runner) appendHistory(s scoring.Score) {
	r.history = append(r.history, s)

	// Trim history
	if len(r.history) > r.cfg.HistorySize {
		// Shift instead of slice to avoid memory leak
		copy(r.history, r.history[1:])
		r.history = r.history[:r.cfg.HistorySize]
	}
}

func (r *Runner) notify(u Update) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()

	for ch := range r.subs {
		select {
		case ch <- u:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Subscribe returns a channel that receives updates
func (r *Runner) Subscribe() chan Update {
	ch := make(chan Update, 32)

	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber
func (r *Runner) Unsubscribe(ch chan Update) {
	r.subsMu.Lock()
	if _, exists := r.subs[ch]; exists {
		delete(r.subs, ch)
		close(ch)
	}
	r.subsMu.Unlock()
}

// Latest returns the most recent score
func (r *Runner) Latest() (scoring.Score, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.latest == nil {
		return scoring.Score{}, false
	}
	return *r.latest, true
}

// History returns up to n of the most recent scores, oldest first.
// n <= 0 returns everything retained.
func (r *Runner) History(n int) []scoring.Score {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.history
	if n > 0 && n < len(src) {
		src = src[len(src)-n:]
	}
	out := make([]scoring.Score, len(src))
	copy(out, src)
	return out
}

// Snapshot returns the controller state
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctrl.Snapshot()
}

// Stats returns runner statistics
func (r *Runner) Stats() RunnerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	avgScoreMs := float64(0)
	if r.scores > 0 {
		avgScoreMs = float64(r.totalScoreNs) / float64(r.scores) / 1e6
	}

	r.subsMu.RLock()
	subscribers := len(r.subs)
	r.subsMu.RUnlock()

	stats := RunnerStats{
		Ticks:           r.ticks,
		Observations:    r.observations,
		Missing:         r.missing,
		SourceErrors:    r.sourceErrors,
		Dropped:         r.dropped,
		Stale:           r.stale,
		Scores:          r.scores,
		ScoreErrors:     r.scoreErrors,
		AvgScoreMs:      avgScoreMs,
		HistorySize:     len(r.history),
		SubscriberCount: subscribers,
		SourceName:      r.source.Name(),
		SourceHealthy:   r.source.Healthy(),
		State:           r.ctrl.State(),
	}
	if r.latest != nil {
		stats.LastCombined = r.latest.Combined
	}
	return stats
}

// RunnerStats contains runner statistics
type RunnerStats struct {
	Ticks           int64   `json:"ticks"`
	Observations    int64   `json:"observations"`
	Missing         int64   `json:"missing"`
	SourceErrors    int64   `json:"source_errors"`
	Dropped         int64   `json:"dropped"`
	Stale           int64   `json:"stale"`
	Scores          int64   `json:"scores"`
	ScoreErrors     int64   `json:"score_errors"`
	AvgScoreMs      float64 `json:"avg_score_ms"`
	HistorySize     int     `json:"history_size"`
	SubscriberCount int     `json:"subscriber_count"`
	SourceName      string  `json:"source"`
	SourceHealthy   bool    `json:"source_healthy"`
	State           State   `json:"state"`
	LastCombined    float64 `json:"last_combined_score"`
}

// Shutdown stops the runner and closes every subscriber
func (r *Runner) Shutdown() {
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
		<-r.done
	}

	r.subsMu.Lock()
	for ch := range r.subs {
		close(ch)
		delete(r.subs, ch)
	}
	r.subsMu.Unlock()
}
