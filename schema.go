package gospecan

import (
	"fmt"
	"strconv"
)

// FieldKind 表示表格记录中一个字段的类型。
type FieldKind string

const (
	FieldInt   FieldKind = "int"
	FieldFloat FieldKind = "float"
	FieldEnum  FieldKind = "enum"
)

// Field 是 Schema 中的一个类型化槽位。
type Field struct {
	Name  string       `yaml:"name"`
	Kind  FieldKind    `yaml:"kind"`
	Table string       `yaml:"table,omitempty"` // 枚举字段引用的表名（目录中使用）
	Enum  *LookupTable `yaml:"-"`
}

// IntField 创建整数字段。
func IntField(name string) Field {
	return Field{Name: name, Kind: FieldInt}
}

// FloatField 创建浮点字段。
func FloatField(name string) Field {
	return Field{Name: name, Kind: FieldFloat}
}

// EnumField 创建通过查找表解析的枚举字段。
func EnumField(name string, t *LookupTable) Field {
	return Field{Name: name, Kind: FieldEnum, Table: t.Name(), Enum: t}
}

// Schema 定义连续 token 如何映射为一条记录。
type Schema struct {
	Name   string
	Fields []Field
}

// NewSchema 创建 Schema。
func NewSchema(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// Width 返回每条记录消耗的 token 数。
func (s *Schema) Width() int {
	return len(s.Fields)
}

// FieldIndex 返回字段位置，未找到时返回 -1。
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Validate 检查字段定义是否完整。
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %s: no fields", s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field %d has no name", s.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %s", s.Name, f.Name)
		}
		seen[f.Name] = true
		switch f.Kind {
		case FieldInt, FieldFloat:
		case FieldEnum:
			if f.Enum == nil {
				return fmt.Errorf("schema %s: enum field %s has no table", s.Name, f.Name)
			}
		default:
			return fmt.Errorf("schema %s: field %s has unknown kind %q", s.Name, f.Name, f.Kind)
		}
	}
	return nil
}

// bind 将 Table 名解析为 LookupTable。
func (s *Schema) bind(tables Tables) error {
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Kind != FieldEnum || f.Enum != nil {
			continue
		}
		f.Enum = tables.Resolve(f.Table)
		if f.Enum == nil {
			return fmt.Errorf("schema %s: field %s: unknown table %q", s.Name, f.Name, f.Table)
		}
	}
	return s.Validate()
}

// ResultBuffer 是一组与 Schema 对应、容量固定的并行输出列。
// 整数与枚举字段为 []int，浮点字段为 []float64。
type ResultBuffer struct {
	schema   *Schema
	capacity int
	columns  []any
	count    int
}

// NewResultBuffer 按 schema 分配容量为 capacity 的输出列。
func NewResultBuffer(schema *Schema, capacity int) *ResultBuffer {
	if capacity < 0 {
		capacity = 0
	}
	b := &ResultBuffer{
		schema:   schema,
		capacity: capacity,
		columns:  make([]any, len(schema.Fields)),
	}
	for i, f := range schema.Fields {
		if f.Kind == FieldFloat {
			b.columns[i] = make([]float64, capacity)
		} else {
			b.columns[i] = make([]int, capacity)
		}
	}
	return b
}

// Schema 返回缓冲区对应的 Schema。
func (b *ResultBuffer) Schema() *Schema {
	return b.schema
}

// Capacity 返回每列容量。
func (b *ResultBuffer) Capacity() int {
	return b.capacity
}

// Columns 返回可传给 Decode/DecodeTabular 的输出列。
func (b *ResultBuffer) Columns() []any {
	return b.columns
}

// Count 返回最近一次解码报告的记录总数（可能大于容量）。
func (b *ResultBuffer) Count() int {
	return b.count
}

// Len 返回已写入的记录数，即 min(Count, Capacity)。
func (b *ResultBuffer) Len() int {
	if b.count < b.capacity {
		return b.count
	}
	return b.capacity
}

// Decode 将 reply 解码进缓冲区并记录总数。
func (b *ResultBuffer) Decode(reply string) (int, error) {
	n, err := Decode(reply, b.schema, b.capacity, b.columns...)
	b.count = n
	return n, err
}

// SetCount 记录外部解码（如 Driver.DecodeTabular）报告的总数。
func (b *ResultBuffer) SetCount(n int) {
	b.count = n
}

// Floats 返回名为 name 的浮点列，不存在或类型不符时返回 nil。
func (b *ResultBuffer) Floats(name string) []float64 {
	i := b.schema.FieldIndex(name)
	if i < 0 {
		return nil
	}
	col, _ := b.columns[i].([]float64)
	return col
}

// Ints 返回名为 name 的整数/枚举列，不存在或类型不符时返回 nil。
func (b *ResultBuffer) Ints(name string) []int {
	i := b.schema.FieldIndex(name)
	if i < 0 {
		return nil
	}
	col, _ := b.columns[i].([]int)
	return col
}

// Row 将第 i 条记录格式化为字符串，枚举值显示为关键字。
func (b *ResultBuffer) Row(i int) []string {
	row := make([]string, len(b.schema.Fields))
	for f, field := range b.schema.Fields {
		switch col := b.columns[f].(type) {
		case []float64:
			row[f] = strconv.FormatFloat(col[i], 'g', -1, 64)
		case []int:
			row[f] = formatInt(field, col[i])
		}
	}
	return row
}

func formatInt(f Field, v int) string {
	switch {
	case v == MissingInt:
		return "-"
	case f.Kind == FieldEnum:
		if kw, ok := f.Enum.Keyword(v); ok {
			return kw
		}
		return "?"
	default:
		return strconv.Itoa(v)
	}
}
