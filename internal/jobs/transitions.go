package jobs

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates a status change outside the lifecycle graph.
var ErrInvalidTransition = errors.New("invalid status transition")

// validTransitions is the lifecycle graph. Stage starts consume a done
// status, stage completions produce the next done status, processing
// statuses may roll back to their stage start when a job is reclaimed, and
// failed jobs may be retried from pending.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusIndexing, StatusFailed},
	StatusIndexing:   {StatusIndexed, StatusPending, StatusFailed},
	StatusIndexed:    {StatusPlanning, StatusFailed},
	StatusPlanning:   {StatusPlanned, StatusIndexed, StatusFailed},
	StatusPlanned:    {StatusDrafting, StatusFailed},
	StatusDrafting:   {StatusDrafted, StatusPlanned, StatusFailed},
	StatusDrafted:    {StatusAssembling, StatusFailed},
	StatusAssembling: {StatusCompleted, StatusDrafted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {StatusPending},
}

// ValidateTransition reports whether moving from one status to another is
// allowed. Writing a job back with an unchanged status is always allowed.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// rollbackTargets maps a processing status to the stage-start status a
// reclaimed job returns to.
var rollbackTargets = map[Status]Status{
	StatusIndexing:   StatusPending,
	StatusPlanning:   StatusIndexed,
	StatusDrafting:   StatusPlanned,
	StatusAssembling: StatusDrafted,
}

// RollbackTarget returns the stage-start status a reclaimed processing job
// returns to.
func RollbackTarget(status Status) (Status, bool) {
	target, ok := rollbackTargets[status]
	return target, ok
}
