package journal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/barreplay/internal/domain"
)

func entry(symbol string, pnl int64) domain.JournalEntry {
	return domain.JournalEntry{
		SessionID: "session-1",
		Symbol:    symbol,
		Timeframe: domain.Timeframe("1h"),
		Trade: domain.ClosedTrade{
			PositionID: 1,
			Side:       domain.PositionSideLong,
			Size:       decimal.NewFromInt(1),
			PnL:        decimal.NewFromInt(pnl),
			Reason:     domain.CloseReasonManual,
		},
	}
}

func TestWALStore_SaveAndReplay(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)

	seq1, err := store.Save(entry("BTCUSDT", 10))
	require.NoError(t, err)
	seq2, err := store.Save(entry("ETHUSDT", -5))
	require.NoError(t, err)
	seq3, err := store.Save(entry("BTCUSDT", 7))
	require.NoError(t, err)
	assert.Equal(t, []uint64{seq1 + 1, seq1 + 2}, []uint64{seq2, seq3})

	all, err := store.EntriesAfter(0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.False(t, all[0].RecordedAt.IsZero())

	btc, err := store.EntriesAfter(seq1, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.True(t, btc[0].Trade.PnL.Equal(decimal.NewFromInt(7)))
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	replayed, err := reopened.EntriesAfter(0, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	assert.Equal(t, seq1, replayed[0].Seq)
	assert.Equal(t, seq3, replayed[1].Seq)
}

func TestWALStore_RequiresSymbol(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save(domain.JournalEntry{})
	assert.Error(t, err)

	var nilStore *WALStore
	_, err = nilStore.EntriesAfter(0, "")
	assert.Error(t, err)
	assert.Zero(t, nilStore.CurrentIndex())
}
