package event

import "fmt"

// OraclePriceUpdate feeds the risk metrics and holding valuations.
type OraclePriceUpdate struct {
	AssetID       string `json:"asset"`
	Price         int64  `json:"price"`
	ConfidenceBps int64  `json:"confidence_bps"`
	TimestampUs   int64  `json:"timestamp_us"`
	Sequence      int64  `json:"sequence"`
}

func (o *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%s:%d", o.AssetID, o.TimestampUs)
}

func (o *OraclePriceUpdate) EventType() EventType {
	return EventTypeOraclePriceUpdate
}

func (o *OraclePriceUpdate) Asset() *string {
	return &o.AssetID
}

func (o *OraclePriceUpdate) SourceSequence() int64 {
	return o.Sequence
}

// PremiumEpochTick advances the premium engine and the adequacy monitor.
type PremiumEpochTick struct {
	TimestampUs int64 `json:"timestamp_us"`
	Block       int64 `json:"block"`
	Sequence    int64 `json:"sequence"`
}

func (p *PremiumEpochTick) IdempotencyKey() string {
	return fmt.Sprintf("epoch:%d", p.TimestampUs)
}

func (p *PremiumEpochTick) EventType() EventType {
	return EventTypePremiumEpochTick
}

func (p *PremiumEpochTick) Asset() *string {
	return nil // Global event
}

func (p *PremiumEpochTick) SourceSequence() int64 {
	return p.Sequence
}
