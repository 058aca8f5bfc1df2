// Package telephony is the narrow contract to the telephony provider: call
// creation, status updates, and status lookup.
package telephony

import (
	"context"
	"fmt"
)

// Call status values reported by the provider.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"
)

// Call is the provider's view of one call resource.
type Call struct {
	SID       string
	To        string
	From      string
	Status    string
	Duration  string
	StartTime string
	EndTime   string
}

// CreateParams describe an outbound call to place.
type CreateParams struct {
	To             string
	From           string
	InstructionDoc string // inline instruction document executed on answer
	StatusCallback string
	Timeout        int
}

// Gateway is the telephony provider contract. Outbound call creation is
// never retried by callers: a duplicate call is a correctness hazard.
type Gateway interface {
	CreateCall(ctx context.Context, params CreateParams) (Call, error)
	UpdateCallStatus(ctx context.Context, callID, status string) error
	FetchCall(ctx context.Context, callID string) (Call, error)
}

// GatewayError marks a provider-side failure, surfaced to the initiating
// caller without retry.
type GatewayError struct {
	Op     string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("telephony %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("telephony %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
