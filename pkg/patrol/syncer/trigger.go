package syncer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// TriggerConfig configures the periodic sync trigger.
//
// The engine itself never schedules retries; the trigger owns the cadence and
// applies exponential backoff between passes after failures so a down backend
// is not hammered.
type TriggerConfig struct {
	// Interval is the delay between passes while the backend is healthy.
	Interval time.Duration

	// InitialBackoff is the delay after the first failed pass.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between failed passes.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied after each failed pass.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0) applied to backoff delays.
	Jitter float64
}

// DefaultTriggerConfig is the standard trigger configuration: a five minute
// cadence with backoff doubling from thirty seconds up to fifteen minutes.
var DefaultTriggerConfig = TriggerConfig{
	Interval:       5 * time.Minute,
	InitialBackoff: 30 * time.Second,
	MaxBackoff:     15 * time.Minute,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// Trigger periodically invokes SyncAll on an engine, backing off after
// failed passes and waking immediately on Kick (connectivity restored) or an
// authentication state change to authenticated.
type Trigger struct {
	engine *Engine
	cfg    TriggerConfig
	auth   AuthState
	logger *slog.Logger
	kick   chan struct{}
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithTriggerAuthState pauses the trigger while unauthenticated and kicks a
// pass when authentication is regained.
func WithTriggerAuthState(auth AuthState) TriggerOption {
	return func(t *Trigger) {
		t.auth = auth
	}
}

// WithTriggerLogger sets a structured logger. A nil logger disables logging.
func WithTriggerLogger(logger *slog.Logger) TriggerOption {
	return func(t *Trigger) {
		t.logger = logger
	}
}

// NewTrigger creates a trigger for the given engine.
// Zero fields in cfg fall back to DefaultTriggerConfig values.
func NewTrigger(engine *Engine, cfg TriggerConfig, opts ...TriggerOption) *Trigger {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTriggerConfig.Interval
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultTriggerConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultTriggerConfig.MaxBackoff
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = DefaultTriggerConfig.BackoffFactor
	}

	t := &Trigger{
		engine: engine,
		cfg:    cfg,
		kick:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kick requests an immediate pass, coalescing with any pass already
// requested. Intended for connectivity-change callbacks.
func (t *Trigger) Kick() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled, invoking SyncAll on the configured
// cadence. It always returns ctx.Err().
func (t *Trigger) Run(ctx context.Context) error {
	var authSub interface{ Unsubscribe() }
	if t.auth != nil {
		authSub = t.auth.OnChange(func(authenticated bool) {
			if authenticated {
				t.Kick()
			}
		})
		defer authSub.Unsubscribe()
	}

	failures := 0
	backoff := t.cfg.InitialBackoff
	delay := t.cfg.Interval

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		if t.auth != nil && !t.auth.IsAuthenticated() {
			// Paused: wait a full interval or the next kick.
			if t.logger != nil {
				t.logger.Debug("sync trigger paused: not authenticated")
			}
			timer.Reset(t.cfg.Interval)
			continue
		}

		ok, err := t.engine.SyncAll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil || !ok:
			failures++
			delay = jittered(backoff, t.cfg.Jitter)
			backoff = time.Duration(float64(backoff) * t.cfg.BackoffFactor)
			if backoff > t.cfg.MaxBackoff {
				backoff = t.cfg.MaxBackoff
			}
			if t.logger != nil {
				t.logger.Debug("sync pass incomplete, backing off",
					slog.Int("consecutive_failures", failures),
					slog.Duration("next_attempt_in", delay),
				)
			}
		default:
			failures = 0
			backoff = t.cfg.InitialBackoff
			delay = t.cfg.Interval
		}

		timer.Reset(delay)
	}
}

// jittered returns base +/- (base * jitter * random).
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	amount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + amount)
}
