package checkout

import "fmt"

var transitions = map[Status][]Status{
	StatusDraft:     {StatusDraft, StatusValidated, StatusExpired},
	StatusValidated: {StatusDraft, StatusValidated, StatusSubmitted, StatusExpired},
	StatusExpired:   {StatusDraft},
	StatusSubmitted: nil,
}

// CanTransition reports whether a session in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func transition(d *Data, next Status) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, d.Status, next)
	}
	d.Status = next
	return nil
}
