package lead

import (
	"errors"
	"fmt"
)

// Status is a lead's stage in the sales funnel.
type Status string

// Funnel statuses.
const (
	StatusNew        Status = "new"
	StatusQualifying Status = "qualifying"
	StatusQualified  Status = "qualified"
	StatusRejected   Status = "rejected"
	StatusContacted  Status = "contacted"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
)

// ErrInvalidTransition is returned when a status change would move a lead
// backwards in the funnel.
var ErrInvalidTransition = errors.New("invalid status transition")

var funnelRank = map[Status]int{
	StatusNew:        0,
	StatusQualifying: 1,
	StatusQualified:  2,
	StatusRejected:   2,
	StatusContacted:  3,
	StatusWon:        4,
	StatusLost:       4,
}

// Statuses lists every funnel status in funnel order.
func Statuses() []Status {
	return []Status{StatusNew, StatusQualifying, StatusQualified, StatusRejected, StatusContacted, StatusWon, StatusLost}
}

// Rank is the status's position in the funnel. Unknown statuses rank -1.
func (s Status) Rank() int {
	r, ok := funnelRank[s]
	if !ok {
		return -1
	}
	return r
}

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := funnelRank[s]; !ok {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Terminal reports whether the status ends the funnel.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// CanTransition reports whether a lead may move from one status to another
// without a manual reopen. Moves never go to a lower rank, qualified and
// rejected may swap on re-qualification, and terminal statuses are final.
func CanTransition(from, to Status) bool {
	fromRank, ok := funnelRank[from]
	if !ok {
		return false
	}
	toRank, ok := funnelRank[to]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return toRank >= fromRank
}

// Transition returns the target status or ErrInvalidTransition.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Reopen is the explicit manual exception to forward-only movement: any lead
// goes back to qualifying.
func Reopen(Status) Status {
	return StatusQualifying
}
