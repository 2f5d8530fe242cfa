package event

import "github.com/google/uuid"

// LossRecorded is a realized loss flowing into the waterfall.
type LossRecorded struct {
	LossID      uuid.UUID `json:"event_id"`
	AssetID     string    `json:"asset"`
	Amount      int64     `json:"amount"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (l *LossRecorded) IdempotencyKey() string {
	return l.LossID.String()
}

func (l *LossRecorded) EventType() EventType {
	return EventTypeLossRecorded
}

func (l *LossRecorded) Asset() *string {
	return &l.AssetID
}

func (l *LossRecorded) SourceSequence() int64 {
	return l.Sequence
}

// ProfitRecorded is realized profit flowing into the waterfall.
type ProfitRecorded struct {
	ProfitID    uuid.UUID `json:"event_id"`
	AssetID     string    `json:"asset"`
	Amount      int64     `json:"amount"`
	Sequence    int64     `json:"sequence"`
	TimestampUs int64     `json:"timestamp_us"`
}

func (p *ProfitRecorded) IdempotencyKey() string {
	return p.ProfitID.String()
}

func (p *ProfitRecorded) EventType() EventType {
	return EventTypeProfitRecorded
}

func (p *ProfitRecorded) Asset() *string {
	return &p.AssetID
}

func (p *ProfitRecorded) SourceSequence() int64 {
	return p.Sequence
}
