package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLossHistory_RecordsWaterfallSplit(t *testing.T) {
	p := NewLossHistoryProjection()

	p.Record("USDC", 10, 1_700_000_000_000_000, []JournalEntry{
		{DebitAccount: "external:liquidation:USDC", CreditAccount: "system:junior:USDC", AssetID: 1, Amount: 800},
		{DebitAccount: "external:liquidation:USDC", CreditAccount: "system:senior:USDC", AssetID: 1, Amount: 200},
	})

	entries := p.QueryByAsset("USDC", 10)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(800), entries[0].JuniorLoss)
	assert.Equal(t, int64(200), entries[0].SeniorLoss)
	assert.Equal(t, int64(10), entries[0].Sequence)
}

func TestLossHistory_JuniorOnlyLoss(t *testing.T) {
	p := NewLossHistoryProjection()

	p.Record("USDT", 5, 0, []JournalEntry{
		{DebitAccount: "external:liquidation:USDT", CreditAccount: "system:junior:USDT", AssetID: 2, Amount: 1500},
	})

	entries := p.QueryByAsset("USDT", 10)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(1500), entries[0].JuniorLoss)
	assert.Zero(t, entries[0].SeniorLoss)
}

func TestLossHistory_QueryNewestFirstPerAsset(t *testing.T) {
	p := NewLossHistoryProjection()

	p.Record("USDC", 1, 0, []JournalEntry{{CreditAccount: "system:junior:USDC", Amount: 100}})
	p.Record("USDT", 2, 0, []JournalEntry{{CreditAccount: "system:junior:USDT", Amount: 200}})
	p.Record("USDC", 3, 0, []JournalEntry{{CreditAccount: "system:junior:USDC", Amount: 300}})

	entries := p.QueryByAsset("USDC", 10)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Sequence)
	assert.Equal(t, int64(1), entries[1].Sequence)

	limited := p.QueryByAsset("USDC", 1)
	assert.Len(t, limited, 1)
	assert.Equal(t, int64(3), limited[0].Sequence)
}

func TestLossHistory_UnknownAssetEmpty(t *testing.T) {
	p := NewLossHistoryProjection()
	assert.Empty(t, p.QueryByAsset("DAI", 10))
}
