package gospecan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MissingInt 是 []int 列中缺失字段的哨兵值；[]float64 列使用 NaN。
// 整数字段的有效范围因此为 (MinInt32, MaxInt32]。
const MissingInt = math.MinInt32

// scpiNaN 是 SCPI 约定的 "not a number" 数值（SCPI-99 7.2.1.5）。
const scpiNaN = 9.91e37

// value 是单个 token 的解码结果。
type value struct {
	f float64
	n int
}

var missingValue = value{f: math.NaN(), n: MissingInt}

// Decode 将一行逗号分隔的表格响应解码为 schema 定义的记录。
//
// columns 与 schema.Fields 一一对应：[]float64 可接收任意类型字段，
// []int 可接收整数与枚举字段，nil 表示跳过该字段。每个非 nil 列长度至少为 capacity。
// 返回值 count 是响应中的记录总数，可能大于 capacity；只有前 capacity 条被写入。
//
// 非空但无法解析的 token 会将对应槽位写为缺失值并继续解码，
// 以保持 count 正确，最终返回 *ProtocolError。
func Decode(reply string, schema *Schema, capacity int, columns ...any) (int, error) {
	if err := checkColumns(schema, capacity, columns); err != nil {
		return 0, err
	}
	return decode(reply, schema, capacity, columns)
}

// checkColumns 在任何 I/O 之前验证调用方提供的输出列。
func checkColumns(schema *Schema, capacity int, columns []any) error {
	if schema == nil {
		return NewParameterError(0, "schema", nil, "nil schema")
	}
	if err := schema.Validate(); err != nil {
		return NewParameterError(0, "schema", schema.Name, err.Error())
	}
	if capacity < 0 {
		return NewParameterError(0, "capacity", capacity, "must not be negative")
	}
	if len(columns) != len(schema.Fields) {
		return NewParameterError(0, "columns", len(columns),
			fmt.Sprintf("schema %s has %d fields", schema.Name, len(schema.Fields)))
	}
	for i, f := range schema.Fields {
		pos := i + 1
		switch col := columns[i].(type) {
		case nil:
		case []float64:
			if col != nil && len(col) < capacity {
				return NewParameterError(pos, f.Name, len(col), fmt.Sprintf("column shorter than capacity %d", capacity))
			}
		case []int:
			if f.Kind == FieldFloat {
				return NewParameterError(pos, f.Name, "[]int", "float field needs a []float64 column")
			}
			if col != nil && len(col) < capacity {
				return NewParameterError(pos, f.Name, len(col), fmt.Sprintf("column shorter than capacity %d", capacity))
			}
		default:
			return NewParameterError(pos, f.Name, fmt.Sprintf("%T", col), "unsupported column type")
		}
	}
	return nil
}

func decode(reply string, schema *Schema, capacity int, columns []any) (int, error) {
	tokens := splitReply(reply)
	width := len(schema.Fields)
	count := (len(tokens) + width - 1) / width

	var perr *ProtocolError
	for r := 0; r < count; r++ {
		for f := range schema.Fields {
			field := &schema.Fields[f]
			tok := ""
			if i := r*width + f; i < len(tokens) {
				tok = strings.TrimSpace(tokens[i])
			}
			v, reason := decodeToken(tok, field)
			if reason != "" {
				if perr == nil {
					perr = &ProtocolError{Record: r, Field: field.Name, Token: tok, Reason: reason}
				}
				perr.Occurrences++
				v = missingValue
			}
			if r < capacity {
				store(columns[f], r, v)
			}
		}
	}
	if perr != nil {
		return count, perr
	}
	return count, nil
}

// splitReply 去除行终止符并按逗号切分。
// 末尾的单个分隔符只结束列表，不开启新记录。
func splitReply(reply string) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}
	tokens := strings.Split(reply, ",")
	if n := len(tokens); n > 1 && strings.TrimSpace(tokens[n-1]) == "" {
		tokens = tokens[:n-1]
	}
	return tokens
}

// isPlaceholder 判断 token 是否表示缺失字段：空，或单个非数字字符。
func isPlaceholder(tok string) bool {
	return tok == "" || (len(tok) == 1 && (tok[0] < '0' || tok[0] > '9'))
}

// decodeToken 解码单个 token；reason 非空表示 token 存在但无法解析。
func decodeToken(tok string, f *Field) (value, string) {
	if f.Kind == FieldEnum && f.Enum.Contains(tok) {
		i := f.Enum.Index(tok)
		return value{f: float64(i), n: i}, ""
	}
	if isPlaceholder(tok) {
		return missingValue, ""
	}

	switch f.Kind {
	case FieldEnum:
		return value{f: float64(NotFound), n: NotFound}, ""

	case FieldInt:
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			// MinInt32 本身是缺失哨兵，不作为有效值。
			if n <= math.MinInt32 || n > math.MaxInt32 {
				return value{}, "integer out of range"
			}
			return value{f: float64(n), n: int(n)}, ""
		}
		x, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return value{}, "not an integer"
		}
		if x == scpiNaN {
			return missingValue, ""
		}
		if x != math.Trunc(x) {
			return value{}, "not an integer"
		}
		if x <= math.MinInt32 || x > math.MaxInt32 {
			return value{}, "integer out of range"
		}
		return value{f: x, n: int(x)}, ""

	default:
		x, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return value{}, "not a number"
		}
		if x == scpiNaN {
			return missingValue, ""
		}
		return value{f: x}, ""
	}
}

func store(col any, i int, v value) {
	switch c := col.(type) {
	case []float64:
		if c != nil {
			c[i] = v.f
		}
	case []int:
		if c != nil {
			c[i] = v.n
		}
	}
}

// ParseFloats 将逗号分隔的数值列表解析为 []float64，缺失字段为 NaN。
func ParseFloats(reply string) ([]float64, error) {
	tokens := splitReply(reply)
	out := make([]float64, len(tokens))
	f := FloatField("value")
	var perr *ProtocolError
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		v, reason := decodeToken(tok, &f)
		if reason != "" {
			if perr == nil {
				perr = &ProtocolError{Record: i, Field: f.Name, Token: tok, Reason: reason}
			}
			perr.Occurrences++
			v = missingValue
		}
		out[i] = v.f
	}
	if perr != nil {
		return out, perr
	}
	return out, nil
}
