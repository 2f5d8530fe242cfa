package tranche

import "fmt"

// ID selects one of the two capital layers of the pool.
type ID uint8

const (
	Senior ID = iota
	Junior
)

func (id ID) String() string {
	switch id {
	case Senior:
		return "senior"
	case Junior:
		return "junior"
	default:
		return "unknown"
	}
}

// ParseID converts the wire representation ("senior"/"junior") to an ID.
func ParseID(s string) (ID, error) {
	switch s {
	case "senior":
		return Senior, nil
	case "junior":
		return Junior, nil
	default:
		return 0, fmt.Errorf("unknown tranche: %q", s)
	}
}
