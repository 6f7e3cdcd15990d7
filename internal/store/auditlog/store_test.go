package auditlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, Entry{
		TS: 100, TraceID: "t1", Kind: "outcome",
		Instrument: "EURUSD", Side: "buy", State: "REJECTED",
		Detail: "回撤闸门拒绝",
	}))
	require.NoError(t, s.Append(ctx, Entry{
		TS: 200, TraceID: "t2", Kind: "closure",
		Instrument: "XAUUSD", Detail: "final_pnl=-42.5",
	}))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 倒序：最新的在前。
	assert.Equal(t, "t2", got[0].TraceID)
	assert.Equal(t, "closure", got[0].Kind)
	assert.Equal(t, "REJECTED", got[1].State)
}
