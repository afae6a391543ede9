/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

type (
	// Stage is the lifecycle position of the current round.
	Stage int

	// Outcome records how a resolved round ended.
	Outcome int
)

const (
	Idle Stage = iota
	Populated
	Shuffling
	Interactive
	Resolved
)

const (
	Pending Outcome = iota
	Success
	Failure
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Populated:
		return "populated"
	case Shuffling:
		return "shuffling"
	case Interactive:
		return "interactive"
	case Resolved:
		return "resolved"
	}
	return "?"
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	}
	return "?"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
