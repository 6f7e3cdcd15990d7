package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// Record 是一行解码结果：列标识 -> 类型化的值。
// 可能的值类型：string、decimal.Decimal、int64、time.Time、bool、nil。
type Record map[string]any

func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r Record) Decimal(col string) decimal.Decimal {
	if v, ok := r[col].(decimal.Decimal); ok {
		return v
	}
	return decimal.Zero
}

func (r Record) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case decimal.Decimal:
		return v.IntPart()
	default:
		return 0
	}
}

func (r Record) Time(col string) time.Time {
	if v, ok := r[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ScanInto decodes the record into a struct whose mapstructure tags match the
// column identifiers. decimal.Decimal and time.Time fields are assigned as-is.
func (r Record) ScanInto(dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  dst,
		TagName: "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return fmt.Errorf("schema: scanning record failed: %w", err)
	}
	return nil
}

func decodeValue(typ ColumnType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch typ {
	case TypeString:
		return toString(raw), nil
	case TypeNumber:
		return toDecimal(raw)
	case TypeInt:
		d, err := toDecimal(raw)
		if err != nil {
			return nil, err
		}
		return d.IntPart(), nil
	case TypeTimestamp:
		d, err := toDecimal(raw)
		if err != nil {
			// 部分表以 RFC3339 字符串下发时间。
			if s, ok := raw.(string); ok {
				if ts, perr := time.Parse(time.RFC3339, s); perr == nil {
					return ts.UTC(), nil
				}
			}
			return nil, err
		}
		return time.UnixMilli(d.IntPart()).UTC(), nil
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strings.EqualFold(v, "true"), nil
		default:
			return nil, fmt.Errorf("cannot decode %T as bool", raw)
		}
	default:
		return nil, fmt.Errorf("unknown column type %q", typ)
	}
}

func encodeValue(val any) any {
	switch v := val.(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case int64:
		return float64(v)
	case time.Time:
		return float64(v.UnixMilli())
	default:
		return val
	}
}

func toString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot decode %q as number", v)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("cannot decode %T as number", raw)
	}
}
