package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/claimwatch/internal/fetcher"
	"github.com/rewired-gh/claimwatch/internal/logger"
	"github.com/rewired-gh/claimwatch/internal/merger"
	"github.com/rewired-gh/claimwatch/internal/metrics"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/rewired-gh/claimwatch/internal/notify"
	"github.com/rewired-gh/claimwatch/internal/tracker"
)

type Config struct {
	Filter        tracker.Filter
	IdleThreshold time.Duration
}

// Fetcher retrieves one round of upstream data.
type Fetcher interface {
	FetchAll(ctx context.Context) (*fetcher.Snapshot, error)
}

// Journal records emitted alerts. Failures are logged and ignored.
type Journal interface {
	AddClaim(ev *models.ClaimEvent) error
	MarkClaimNotified(id string) error
	AddIdleAlert(ev *models.IdleEvent) error
}

// Options carries optional collaborators. Zero values are valid.
type Options struct {
	Journal Journal
	Metrics *metrics.Metrics
	Tracker *tracker.Tracker
	Clock   func() time.Time

	// LastIdleAt restores the time of the last idle alert sent before a
	// restart. It also debounces the next idle alert.
	LastIdleAt time.Time
}

// CycleResult summarizes one completed cycle.
type CycleResult struct {
	Baseline  bool
	Tokens    int
	Creators  int
	Claims    []models.ClaimEvent
	Idle      *models.IdleEvent
	Anomalies int
	Duration  time.Duration
}

// Monitor runs the fetch, merge, detect and notify sequence. Its tracker and
// state are owned by whichever goroutine calls RunCycle; Status is the only
// method safe to call concurrently.
type Monitor struct {
	fetcher  Fetcher
	notifier notify.Notifier
	journal  Journal
	metrics  *metrics.Metrics
	tracker  *tracker.Tracker
	policy   Policy
	filter   tracker.Filter
	state    models.MonitorState
	now      func() time.Time

	consecutiveFailures int

	mu     sync.RWMutex
	status Status
}

// Status is a point-in-time view of the monitor for other goroutines.
type Status struct {
	Phase               models.Phase
	Cycles              int
	TrackedEntries      int
	LastClaimAt         time.Time
	LastIdleAt          time.Time
	LastCycleAt         time.Time
	ConsecutiveFailures int
}

func New(f Fetcher, n notify.Notifier, config Config, opts Options) *Monitor {
	m := &Monitor{
		fetcher:  f,
		notifier: n,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		tracker:  opts.Tracker,
		policy:   Policy{IdleThreshold: config.IdleThreshold},
		filter:   config.Filter,
		state:    models.NewMonitorState(),
		now:      opts.Clock,
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.tracker == nil {
		m.tracker = tracker.New()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.state.LastIdleAt = opts.LastIdleAt
	m.publishStatus()
	return m
}

// Tracker returns the claim tracker.
func (m *Monitor) Tracker() *tracker.Tracker {
	return m.tracker
}

// State returns a copy of the monitor state.
func (m *Monitor) State() models.MonitorState {
	return m.state
}

// RunCycle performs one monitoring cycle. A fetch failure returns an error
// and leaves the tracker and state untouched, as does a context cancelled
// before the fetch completes. Notification failures are logged and never
// returned.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := m.now()
	m.metrics.Cycles.Inc()
	defer func() {
		m.metrics.CycleDuration.Observe(m.now().Sub(start).Seconds())
	}()

	logger.Debug("Fetching fee and stats datasets")
	snap, err := m.fetcher.FetchAll(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("cycle abandoned: %w", ctxErr)
	}
	if err != nil {
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			m.metrics.FetchFailures.WithLabelValues(fe.Source).Inc()
		}
		return nil, m.fail(fmt.Errorf("failed to fetch datasets: %w", err))
	}

	tokens := merger.Merge(snap.Fees, snap.Stats)
	m.metrics.TokensObserved.Set(float64(len(tokens)))
	logger.Debug("Merged %d tokens (%d fee entries, %d stats entries)", len(tokens), len(snap.Fees), len(snap.Stats))

	now := m.now()
	result := &CycleResult{Tokens: len(tokens)}

	var decision Decision
	if m.state.Phase == models.PhaseBaseline {
		result.Creators = m.tracker.Baseline(tokens, m.filter)
		decision = m.policy.Evaluate(&m.state, nil, m.tracker.Len(), now)
		logger.Info("Baseline established: %d creators across %d tokens, %d tracked entries",
			result.Creators, len(tokens), m.tracker.Len())
	} else {
		detected := m.tracker.Detect(tokens, m.filter, now)
		result.Creators = detected.Seen
		result.Anomalies = len(detected.Anomalies)
		for _, a := range detected.Anomalies {
			m.metrics.ClaimAnomalies.Inc()
			logger.Info("Claimed amount decreased for %s/%s: %s -> %s",
				a.Key.Mint, a.Key.Wallet, a.Previous, a.Current)
		}
		decision = m.policy.Evaluate(&m.state, detected.Events, m.tracker.Len(), now)
	}
	m.metrics.TrackedEntries.Set(float64(m.tracker.Len()))

	result.Baseline = decision.Baseline
	result.Claims = m.emitClaims(ctx, decision.Claims)
	if decision.Idle != nil {
		m.emitIdle(ctx, decision.Idle)
		result.Idle = decision.Idle
	}

	m.succeed()
	result.Duration = m.now().Sub(start)
	logger.Info("Monitoring cycle completed in %v: %d tokens, %d claims, idle=%t",
		result.Duration, result.Tokens, len(result.Claims), result.Idle != nil)
	return result, nil
}

func (m *Monitor) emitClaims(ctx context.Context, events []models.ClaimEvent) []models.ClaimEvent {
	for i := range events {
		ev := &events[i]
		m.metrics.ClaimsDetected.Inc()
		m.metrics.ClaimedSOL.Add(ev.Delta.InexactFloat64())

		logger.WithFields(map[string]interface{}{
			"mint":     ev.Token.Mint,
			"symbol":   ev.Token.Label(),
			"wallet":   ev.Creator.Wallet,
			"previous": ev.Previous.String(),
			"current":  ev.Current.String(),
			"delta":    ev.Delta.String(),
		}).Info("Claim detected")

		if m.journal != nil {
			if err := m.journal.AddClaim(ev); err != nil {
				logger.Warn("Failed to journal claim %s: %v", ev.ID, err)
			}
		}

		if err := m.notifier.NotifyClaim(ctx, *ev); err != nil {
			m.metrics.NotifyFailures.WithLabelValues("claim").Inc()
			logger.Error("Failed to send claim notification for %s/%s: %v", ev.Token.Mint, ev.Creator.Wallet, err)
			continue
		}
		ev.Notified = true
		if m.journal != nil {
			if err := m.journal.MarkClaimNotified(ev.ID); err != nil {
				logger.Warn("Failed to mark claim %s notified: %v", ev.ID, err)
			}
		}
	}
	return events
}

func (m *Monitor) emitIdle(ctx context.Context, ev *models.IdleEvent) {
	m.metrics.IdleAlerts.Inc()
	logger.Info("No claims for %v, sending idle notification", ev.SilentFor.Round(time.Second))

	if m.journal != nil {
		if err := m.journal.AddIdleAlert(ev); err != nil {
			logger.Warn("Failed to journal idle alert: %v", err)
		}
	}
	if err := m.notifier.NotifyIdle(ctx, *ev); err != nil {
		m.metrics.NotifyFailures.WithLabelValues("idle").Inc()
		logger.Error("Failed to send idle notification: %v", err)
	}
}

// fail records a failed cycle and reports the error on the first failure
// of a consecutive run.
func (m *Monitor) fail(err error) error {
	m.metrics.CycleFailures.Inc()
	m.consecutiveFailures++
	if m.consecutiveFailures == 1 {
		if sendErr := m.notifier.NotifyError(context.Background(), err); sendErr != nil {
			m.metrics.NotifyFailures.WithLabelValues("error").Inc()
			logger.Warn("Failed to send error notification: %v", sendErr)
		}
	}
	m.publishStatus()
	return err
}

// succeed clears the failure run and reports recovery if there was one.
func (m *Monitor) succeed() {
	if m.consecutiveFailures > 0 {
		if err := m.notifier.NotifyRecovery(context.Background(), m.consecutiveFailures); err != nil {
			m.metrics.NotifyFailures.WithLabelValues("recovery").Inc()
			logger.Warn("Failed to send recovery notification: %v", err)
		}
		logger.Info("Monitoring recovered after %d consecutive failure(s)", m.consecutiveFailures)
	}
	m.consecutiveFailures = 0
	m.publishStatus()
}

func (m *Monitor) publishStatus() {
	s := Status{
		Phase:               m.state.Phase,
		Cycles:              m.state.Cycles,
		TrackedEntries:      m.tracker.Len(),
		LastClaimAt:         m.state.LastClaimAt,
		LastIdleAt:          m.state.LastIdleAt,
		LastCycleAt:         m.now(),
		ConsecutiveFailures: m.consecutiveFailures,
	}
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Status returns the latest published status. Safe for concurrent use.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// StatusText renders Status for chat commands.
func (m *Monitor) StatusText() string {
	s := m.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "Phase: %s\n", s.Phase)
	fmt.Fprintf(&b, "Cycles: %d\n", s.Cycles)
	fmt.Fprintf(&b, "Tracked entries: %d\n", s.TrackedEntries)
	fmt.Fprintf(&b, "Last claim: %s\n", formatTime(s.LastClaimAt))
	fmt.Fprintf(&b, "Last idle alert: %s\n", formatTime(s.LastIdleAt))
	fmt.Fprintf(&b, "Consecutive failures: %d", s.ConsecutiveFailures)
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// Shutdown logs the final tracker summary.
func (m *Monitor) Shutdown() {
	logger.Info("Shutting down after %d cycles with %d tracked claim entries", m.state.Cycles, m.tracker.Len())
}
