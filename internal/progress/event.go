// Package progress provides the event primitives, non-blocking hub, and sink
// interfaces the ingestion engine uses to report cycle progress. Events are
// batched on a background goroutine and fanned out to pluggable sinks such
// as Prometheus metrics or structured logs.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCycleStart    Stage = "CYCLE_START"
	StageCycleDone     Stage = "CYCLE_DONE"
	StageSourceStart   Stage = "SOURCE_START"
	StageSourceDone    Stage = "SOURCE_DONE"
	StageSourceError   Stage = "SOURCE_ERROR"
	StageRecordSkipped Stage = "RECORD_SKIPPED"
	StageRecordMerged  Stage = "RECORD_MERGED"
)

// Event captures a single component of ingestion progress.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or record milestone occurred.
	Stage Stage
	// Source scopes source-level and skip events to one source id.
	Source string
	// Group scopes merge events to one group name.
	Group string
	// Kind distinguishes merged record types ("post" or "location").
	Kind string
	// Count carries the record delta for the event (skips, merges).
	Count int64
	// Dur captures execution latency for source and cycle completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCycleStart, StageCycleDone:
	case StageSourceStart, StageSourceDone, StageSourceError, StageRecordSkipped:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	case StageRecordMerged:
		if e.Group == "" {
			return errors.New("record merged requires group")
		}
		if e.Kind == "" {
			return errors.New("record merged requires kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
