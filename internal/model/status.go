package model

import "fmt"

// Status is the review lifecycle state of an animation.
type Status string

const (
	StatusNone      Status = "none"
	StatusWIP       Status = "wip"
	StatusReview    Status = "review"
	StatusApproved  Status = "approved"
	StatusNeedsWork Status = "needs_work"
	StatusFinal     Status = "final"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{StatusNone, StatusWIP, StatusReview, StatusApproved, StatusNeedsWork, StatusFinal}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus converts a string to a Status. The empty string maps to StatusNone.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusNone, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalid, s)
	}
	return st, nil
}

// NormalizeStatus returns s if valid, StatusNone otherwise. Used when reading
// persisted values that predate validation.
func NormalizeStatus(s string) Status {
	if st := Status(s); st.Valid() {
		return st
	}
	return StatusNone
}
