package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned for privileged actions by non-admins.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrWeekNotOpen is returned when the current week has not been asked yet.
	ErrWeekNotOpen = errors.New("no week is open for reporting")
)

// DeliveryError reports a message that could not reach a participant or chat.
type DeliveryError struct {
	RecipientID int64
	Action      string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: deliver to %d: %v", e.Action, e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
