package models

import (
	"time"
)

// Phase is the alert policy phase.
type Phase string

const (
	PhaseBaseline Phase = "baseline"
	PhaseActive   Phase = "active"
)

type MonitorState struct {
	Phase Phase

	LastClaimAt time.Time
	LastIdleAt  time.Time

	Cycles int
}

// NewMonitorState returns the state of a freshly started monitor.
func NewMonitorState() MonitorState {
	return MonitorState{Phase: PhaseBaseline}
}
