// Package schema turns the broker's positional row/column responses into named,
// typed records. Column order is versioned wire contract: the broker emits bare
// value arrays and the column identifiers for each logical table come from the
// /trade/config document (with an embedded fallback).
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnType 决定单元格的解码目标类型。
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeNumber    ColumnType = "number" // decimal.Decimal
	TypeInt       ColumnType = "int"
	TypeTimestamp ColumnType = "timestamp" // broker millis -> time.Time (UTC)
	TypeBool      ColumnType = "bool"
)

type Column struct {
	ID   string
	Type ColumnType
}

// TableSchema 是一张逻辑表的有序列定义。构造后只读。
type TableSchema struct {
	Table   string
	Columns []Column
}

// Set holds the schemas for every table of one broker config revision.
// Loaded once, shared read-only afterwards.
type Set struct {
	Version int
	tables  map[string]TableSchema
}

// MismatchError 表示行长度与列定义不一致。该行必须整体拒绝，
// 绝不能截断或补位，否则数值会串列。
type MismatchError struct {
	Table string
	Want  int
	Got   int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch for table %q: schema has %d columns, row has %d values", e.Table, e.Want, e.Got)
}

// NewTableSchema 校验列唯一性后返回表定义。
func NewTableSchema(table string, columns []Column) (TableSchema, error) {
	if strings.TrimSpace(table) == "" {
		return TableSchema{}, fmt.Errorf("schema: table name cannot be empty")
	}
	if len(columns) == 0 {
		return TableSchema{}, fmt.Errorf("schema: table %q has no columns", table)
	}
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		id := strings.TrimSpace(col.ID)
		if id == "" {
			return TableSchema{}, fmt.Errorf("schema: table %q has an empty column id", table)
		}
		if seen[id] {
			return TableSchema{}, fmt.Errorf("schema: table %q declares column %q twice", table, id)
		}
		seen[id] = true
	}
	return TableSchema{Table: table, Columns: append([]Column(nil), columns...)}, nil
}

func NewSet(version int, tables []TableSchema) (*Set, error) {
	m := make(map[string]TableSchema, len(tables))
	for _, t := range tables {
		if _, dup := m[t.Table]; dup {
			return nil, fmt.Errorf("schema: duplicate table %q", t.Table)
		}
		m[t.Table] = t
	}
	return &Set{Version: version, tables: m}, nil
}

func (s *Set) Table(name string) (TableSchema, bool) {
	if s == nil {
		return TableSchema{}, false
	}
	t, ok := s.tables[name]
	return t, ok
}

func (s *Set) Tables() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode zips the schema against each positional row. Any row whose length
// differs from the column count fails the whole call.
func (t TableSchema) Decode(rows [][]any) ([]Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := t.DecodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (t TableSchema) DecodeRow(row []any) (Record, error) {
	if len(row) != len(t.Columns) {
		return nil, &MismatchError{Table: t.Table, Want: len(t.Columns), Got: len(row)}
	}
	rec := make(Record, len(t.Columns))
	for i, col := range t.Columns {
		val, err := decodeValue(col.Type, row[i])
		if err != nil {
			return nil, fmt.Errorf("schema: table %q column %q: %w", t.Table, col.ID, err)
		}
		rec[col.ID] = val
	}
	return rec, nil
}

// Encode 按列顺序还原为定位值数组，与 Decode 互逆。
func (t TableSchema) Encode(rec Record) ([]any, error) {
	row := make([]any, len(t.Columns))
	for i, col := range t.Columns {
		val, ok := rec[col.ID]
		if !ok {
			return nil, fmt.Errorf("schema: record missing column %q of table %q", col.ID, t.Table)
		}
		row[i] = encodeValue(val)
	}
	return row, nil
}
