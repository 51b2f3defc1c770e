package consumer

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  time.Time
		ok    bool
	}{
		{name: "seconds", input: int64(1700000000), want: want, ok: true},
		{name: "milliseconds", input: int64(1700000000000), want: want, ok: true},
		{name: "int32 seconds", input: int32(0), want: time.Unix(0, 0).UTC(), ok: true},
		{name: "float seconds", input: 1700000000.5, want: want.Add(500 * time.Millisecond), ok: true},
		{name: "numeric string", input: "1700000000", want: want, ok: true},
		{name: "union", input: map[string]any{"long": int64(1700000000)}, want: want, ok: true},
		{name: "time passes through in utc", input: want.In(time.FixedZone("x", 3600)), want: want, ok: true},
		{name: "upper bound in seconds", input: int64(253402300799), want: time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC), ok: true},
		{name: "beyond milliseconds range", input: int64(253402300799) * 10000, ok: false},
		{name: "text", input: "yesterday", ok: false},
		{name: "bool", input: true, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := toTimestamp(tt.input)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestToTimestampMillisecondFraction(t *testing.T) {
	t.Parallel()

	got, ok := toTimestamp(int64(1700000000123))
	require.True(t, ok)
	assert.WithinDuration(t, time.Date(2023, 11, 14, 22, 13, 20, 123000000, time.UTC), got, time.Microsecond)
}

func TestToDecimal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{name: "string", input: "19.99", want: "19.99", ok: true},
		{name: "padded string", input: " 3 ", want: "3", ok: true},
		{name: "float", input: 0.25, want: "0.25", ok: true},
		{name: "int", input: int64(42), want: "42", ok: true},
		{name: "avro bytes decimal", input: big.NewRat(1234, 100), want: "12.34", ok: true},
		{name: "union", input: map[string]any{"string": "7.5"}, want: "7.5", ok: true},
		{name: "garbage", input: "n/a", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := toDecimal(unwrapUnion(tt.input))
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			}
		})
	}
}

func TestToBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input any
		want  bool
		ok    bool
	}{
		{input: true, want: true, ok: true},
		{input: int32(0), want: false, ok: true},
		{input: int64(2), want: true, ok: true},
		{input: 1.0, want: true, ok: true},
		{input: "false", want: false, ok: true},
		{input: "1", want: true, ok: true},
		{input: "maybe", ok: false},
		{input: nil, ok: false},
	}

	for _, tt := range tests {
		got, ok := toBool(tt.input)
		assert.Equal(t, tt.ok, ok, "input %v", tt.input)
		assert.Equal(t, tt.want, got, "input %v", tt.input)
	}
}

func TestNormalizationApply(t *testing.T) {
	t.Parallel()

	record := map[string]any{
		"created_at": int64(1700000000000),
		"price":      "10.10",
		"enabled":    map[string]any{"int": int32(0)},
		"note":       nil,
		"untouched":  "1700000000",
	}
	Normalization{
		TimestampFields: []string{"created_at", "absent"},
		DecimalFields:   []string{"price"},
		BooleanFields:   []string{"enabled", "note"},
	}.Apply(record)

	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), record["created_at"])
	assert.True(t, decimal.RequireFromString("10.1").Equal(record["price"].(decimal.Decimal)))
	assert.Equal(t, false, record["enabled"])
	assert.Nil(t, record["note"], "null values are left alone")
	assert.Equal(t, "1700000000", record["untouched"])
	assert.NotContains(t, record, "absent")

	assert.NotPanics(t, func() { Normalization{TimestampFields: []string{"x"}}.Apply(nil) })
}
