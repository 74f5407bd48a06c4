package monitor

import (
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/claimwatch/internal/models"
)

// Policy decides which alerts a cycle emits and advances the monitor state.
//
// The first evaluated cycle is the baseline: nothing is emitted and the
// state becomes active. An active cycle with claims emits one alert per
// claim. An active cycle without claims emits an idle alert once the last
// claim and the last idle alert are both at least IdleThreshold old.
type Policy struct {
	IdleThreshold time.Duration
}

// Decision is what a cycle should emit.
type Decision struct {
	Baseline bool
	Claims   []models.ClaimEvent
	Idle     *models.IdleEvent
}

// Evaluate applies the policy for one cycle at time now and mutates state.
func (p Policy) Evaluate(state *models.MonitorState, events []models.ClaimEvent, tracked int, now time.Time) Decision {
	state.Cycles++

	if state.Phase != models.PhaseActive {
		state.Phase = models.PhaseActive
		state.LastClaimAt = now
		return Decision{Baseline: true}
	}

	if len(events) > 0 {
		state.LastClaimAt = now
		return Decision{Claims: events}
	}

	if !p.idleDue(*state, now) {
		return Decision{}
	}

	state.LastIdleAt = now
	return Decision{Idle: &models.IdleEvent{
		ID:             uuid.NewString(),
		LastClaimAt:    state.LastClaimAt,
		SilentFor:      now.Sub(state.LastClaimAt),
		TrackedEntries: tracked,
		DetectedAt:     now,
	}}
}

func (p Policy) idleDue(state models.MonitorState, now time.Time) bool {
	if p.IdleThreshold <= 0 {
		return false
	}
	if now.Sub(state.LastClaimAt) < p.IdleThreshold {
		return false
	}
	return state.LastIdleAt.IsZero() || now.Sub(state.LastIdleAt) >= p.IdleThreshold
}
