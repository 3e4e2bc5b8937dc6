package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventCycleStart  EventType = "cycle_start"
	EventCycleEnd    EventType = "cycle_end"
	EventStepStart   EventType = "step_start"
	EventStepEnd     EventType = "step_end"
	EventRecruitment EventType = "recruitment"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// CycleEvent marks the start or end of a loop iteration.
type CycleEvent struct {
	EventBase
	Cycle int `json:"cycle"`
}

// StepEvent marks the execution of a single step within a cycle.
type StepEvent struct {
	EventBase
	Cycle    int           `json:"cycle"`
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      string        `json:"err,omitempty"`
}

// RecruitmentEvent marks a study lifecycle transition on the recruitment
// platform (publish, start, pause).
type RecruitmentEvent struct {
	EventBase
	StudyID string `json:"study_id"`
	Action  string `json:"action"`
}

// LifecycleHooks defines callbacks for loop observability. Any hook may be
// nil; the runtime checks before calling.
type LifecycleHooks struct {
	OnCycleStart  func(context.Context, *CycleEvent)
	OnCycleEnd    func(context.Context, *CycleEvent)
	OnStepStart   func(context.Context, *StepEvent)
	OnStepEnd     func(context.Context, *StepEvent)
	OnRecruitment func(context.Context, *RecruitmentEvent)
}
