package domain

import (
	"errors"
	"testing"
)

func TestReplayReport_CountAndFailed(t *testing.T) {
	r := ReplayReport{Results: []OperationResult{
		{Operation: QueuedOperation{ID: "1"}, Outcome: OutcomeDispatched},
		{Operation: QueuedOperation{ID: "2"}, Outcome: OutcomeFailed, Err: errors.New("x")},
		{Operation: QueuedOperation{ID: "3"}, Outcome: OutcomeSkipped},
		{Operation: QueuedOperation{ID: "4"}, Outcome: OutcomeFailed, Err: errors.New("y")},
	}}

	if got := r.Count(OutcomeFailed); got != 2 {
		t.Fatalf("expected 2 failed, got %d", got)
	}
	failed := r.Failed()
	if len(failed) != 2 || failed[0].Operation.ID != "2" || failed[1].Operation.ID != "4" {
		t.Fatalf("unexpected failed results: %+v", failed)
	}
}
