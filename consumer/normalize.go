package consumer

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// maxEpochSeconds is 9999-12-31T23:59:59Z. Larger epoch values are read as
// milliseconds.
const maxEpochSeconds = 253402300799

// Normalization names record fields converted in place before dispatch. Conversion
// is best effort: a value that cannot be converted is left as it was.
type Normalization struct {
	// TimestampFields hold epoch seconds or milliseconds and become UTC time.Time.
	TimestampFields []string

	// DecimalFields hold numbers or numeric strings and become decimal.Decimal.
	DecimalFields []string

	// BooleanFields hold bools, numbers or strings such as "true" and become bool.
	BooleanFields []string
}

func (n Normalization) empty() bool {
	return len(n.TimestampFields) == 0 && len(n.DecimalFields) == 0 && len(n.BooleanFields) == 0
}

// Apply converts the configured fields of record in place. Fields absent from
// record are skipped, so one Normalization can serve several record shapes.
//
// Example:
//
//	n := consumer.Normalization{TimestampFields: []string{"created_at"}}
//	record := map[string]any{"created_at": int64(1700000000000)}
//	n.Apply(record)
//	// record["created_at"] is time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
func (n Normalization) Apply(record map[string]any) {
	if record == nil {
		return
	}
	apply(record, n.TimestampFields, toTimestamp)
	apply(record, n.DecimalFields, toDecimal)
	apply(record, n.BooleanFields, toBool)
}

func apply[T any](record map[string]any, fields []string, convert func(any) (T, bool)) {
	for _, field := range fields {
		if v, ok := record[field]; ok {
			record[field] = tryConvert(v, convert)
		}
	}
}

// tryConvert returns the converted value, or v unchanged when conversion fails.
func tryConvert[T any](v any, convert func(any) (T, bool)) any {
	if out, ok := convert(unwrapUnion(v)); ok {
		return out
	}
	return v
}

// unwrapUnion returns the branch value of an Avro union such as {"long": 1}.
func unwrapUnion(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		for _, inner := range m {
			return inner
		}
	}
	return v
}

// toTimestamp accepts time.Time, numbers and numeric strings.
func toTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(f)
	default:
		f, ok := toFloat(v)
		if !ok {
			return time.Time{}, false
		}
		return epochToTime(f)
	}
}

// epochToTime keeps sub-second precision. Values that are out of range even as
// milliseconds are rejected.
func epochToTime(epoch float64) (time.Time, bool) {
	if math.IsNaN(epoch) || math.IsInf(epoch, 0) {
		return time.Time{}, false
	}
	if math.Abs(epoch) > maxEpochSeconds {
		epoch /= 1000
		if math.Abs(epoch) > maxEpochSeconds {
			return time.Time{}, false
		}
	}
	sec, frac := math.Modf(epoch)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true
}

// toDecimal rejects NaN and infinities. Rationals keep 18 fractional digits.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, true
	case string:
		out, err := decimal.NewFromString(strings.TrimSpace(d))
		return out, err == nil
	case *big.Rat:
		if d == nil {
			return decimal.Decimal{}, false
		}
		out, err := decimal.NewFromString(d.FloatString(18))
		return out, err == nil
	case float32:
		return decimal.NewFromFloat32(d), true
	case float64:
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(d), true
	default:
		i, ok := toInt(v)
		if !ok {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromInt(i), true
	}
}

// toBool treats any non-zero number as true.
func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		out, err := strconv.ParseBool(strings.TrimSpace(b))
		return out, err == nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return false, false
		}
		return f != 0, true
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true //nolint:gosec
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true //nolint:gosec
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		i, ok := toInt(v)
		return float64(i), ok
	}
}
