package schema

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var builtinTables []byte

type yamlColumn struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
}

type yamlDocument struct {
	Version int                     `yaml:"version"`
	Tables  map[string][]yamlColumn `yaml:"tables"`
}

// Builtin returns the embedded fallback schema set. It matches the broker
// config revision the bot was developed against; the live /trade/config
// document overrides it when reachable.
func Builtin() (*Set, error) {
	return ParseYAML(builtinTables)
}

func ParseYAML(data []byte) (*Set, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: parsing table document failed: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("schema: table document declares no tables")
	}
	tables := make([]TableSchema, 0, len(doc.Tables))
	for name, cols := range doc.Tables {
		columns := make([]Column, 0, len(cols))
		for _, c := range cols {
			columns = append(columns, Column{ID: c.ID, Type: ColumnType(c.Type)})
		}
		t, err := NewTableSchema(name, columns)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return NewSet(doc.Version, tables)
}

// ColumnTypeFor 为仅给出列标识的在线配置推断类型：
// 数值/时间列按内置表定义，未知列按字符串处理。
func ColumnTypeFor(table, column string) ColumnType {
	builtin, err := Builtin()
	if err != nil {
		return TypeString
	}
	t, ok := builtin.Table(table)
	if !ok {
		return TypeString
	}
	for _, col := range t.Columns {
		if col.ID == column {
			return col.Type
		}
	}
	return TypeString
}
