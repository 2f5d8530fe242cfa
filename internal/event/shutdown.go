package event

import "fmt"

// ShutdownInitiated permanently switches the pool to wind-down mode.
type ShutdownInitiated struct {
	Initiator   string `json:"initiator"`
	Reason      string `json:"reason"`
	TimestampUs int64  `json:"timestamp_us"`
	Sequence    int64  `json:"sequence"`
}

func (s *ShutdownInitiated) IdempotencyKey() string {
	return fmt.Sprintf("shutdown:%d", s.TimestampUs)
}

func (s *ShutdownInitiated) EventType() EventType {
	return EventTypeShutdownInitiated
}

func (s *ShutdownInitiated) Asset() *string {
	return nil
}

func (s *ShutdownInitiated) SourceSequence() int64 {
	return s.Sequence
}
