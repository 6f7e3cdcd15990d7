package schema

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positionsSchema(t *testing.T) TableSchema {
	t.Helper()
	ts, err := NewTableSchema("positions", []Column{
		{ID: "id", Type: TypeString},
		{ID: "tradableInstrumentId", Type: TypeInt},
		{ID: "routeId", Type: TypeInt},
		{ID: "side", Type: TypeString},
		{ID: "qty", Type: TypeNumber},
		{ID: "avgPrice", Type: TypeNumber},
		{ID: "openDate", Type: TypeTimestamp},
		{ID: "unrealizedPl", Type: TypeNumber},
	})
	require.NoError(t, err)
	return ts
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	ts := positionsSchema(t)
	row := []any{"p-1", float64(278), float64(901), "buy", float64(20000), 1.085, float64(1724803200000), -3.5}

	recs, err := ts.Decode([][]any{row})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "p-1", rec.String("id"))
	assert.Equal(t, int64(278), rec.Int64("tradableInstrumentId"))
	assert.True(t, rec.Decimal("qty").Equal(decimal.NewFromInt(20000)))
	assert.True(t, rec.Decimal("avgPrice").Equal(decimal.RequireFromString("1.085")))
	assert.Equal(t, time.UnixMilli(1724803200000).UTC(), rec.Time("openDate"))

	encoded, err := ts.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, row, encoded)
}

func TestDecodeRejectsShortRow(t *testing.T) {
	ts := positionsSchema(t)
	short := []any{"p-1", float64(278), float64(901), "buy", float64(20000), 1.085, float64(1724803200000)}

	_, err := ts.Decode([][]any{short})
	require.Error(t, err)
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "positions", mismatch.Table)
	assert.Equal(t, 8, mismatch.Want)
	assert.Equal(t, 7, mismatch.Got)
}

func TestDecodeFailsWholeCallOnOneBadRow(t *testing.T) {
	ts := positionsSchema(t)
	good := []any{"p-1", float64(278), float64(901), "buy", float64(20000), 1.085, float64(1724803200000), 0.0}

	recs, err := ts.Decode([][]any{good, {"p-2", float64(278)}})
	require.Error(t, err)
	assert.Nil(t, recs)
}

func TestDecodeValueVariants(t *testing.T) {
	ts, err := NewTableSchema("mixed", []Column{
		{ID: "numFromString", Type: TypeNumber},
		{ID: "tsFromRFC3339", Type: TypeTimestamp},
		{ID: "flag", Type: TypeBool},
		{ID: "empty", Type: TypeString},
	})
	require.NoError(t, err)

	rec, err := ts.DecodeRow([]any{"1.0850", "2026-03-06T13:30:00Z", "TRUE", nil})
	require.NoError(t, err)
	assert.True(t, rec.Decimal("numFromString").Equal(decimal.RequireFromString("1.085")))
	assert.Equal(t, time.Date(2026, 3, 6, 13, 30, 0, 0, time.UTC), rec.Time("tsFromRFC3339"))
	assert.Equal(t, true, rec["flag"])
	assert.Equal(t, "", rec.String("empty"))
}

func TestNewTableSchemaRejectsDuplicateColumn(t *testing.T) {
	_, err := NewTableSchema("orders", []Column{
		{ID: "qty", Type: TypeNumber},
		{ID: "qty", Type: TypeNumber},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}

func TestBuiltinCoversCoreTables(t *testing.T) {
	set, err := Builtin()
	require.NoError(t, err)

	for _, table := range []string{"positions", "orders"} {
		ts, ok := set.Table(table)
		require.True(t, ok, "builtin 缺少 %s 表", table)
		assert.NotEmpty(t, ts.Columns)
	}
	assert.Equal(t, TypeNumber, ColumnTypeFor("positions", "avgPrice"))
	assert.Equal(t, TypeString, ColumnTypeFor("positions", "no-such-column"))
}
