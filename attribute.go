package gospecan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AttrKind 是属性值的类型。
type AttrKind string

const (
	AttrInt    AttrKind = "int"
	AttrFloat  AttrKind = "float"
	AttrBool   AttrKind = "bool"
	AttrString AttrKind = "string"
	AttrEnum   AttrKind = "enum"
)

// Attribute 描述一个可读写的仪器设置。
// Command 是不带 '?' 的命令头，可含 <Name> 占位符，由选择器展开。
type Attribute struct {
	ID       int      `yaml:"id"`
	Name     string   `yaml:"name"`
	Command  string   `yaml:"command"`
	Kind     AttrKind `yaml:"kind"`
	Table    string   `yaml:"table,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
	ReadOnly bool     `yaml:"readOnly,omitempty"`

	enum *LookupTable
}

// Enum 返回枚举属性的查找表。
func (a *Attribute) Enum() *LookupTable {
	return a.enum
}

// bounds 返回数值属性的范围，未声明的一端为无穷。
func (a *Attribute) bounds() (float64, float64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if a.Min != nil {
		lo = *a.Min
	}
	if a.Max != nil {
		hi = *a.Max
	}
	return lo, hi
}

func (a *Attribute) validate(tables Tables) error {
	if a.Name == "" {
		return fmt.Errorf("attribute %d: no name", a.ID)
	}
	if a.Command == "" {
		return fmt.Errorf("attribute %s: no command", a.Name)
	}
	switch a.Kind {
	case AttrInt, AttrFloat, AttrBool, AttrString:
	case AttrEnum:
		a.enum = tables.Resolve(a.Table)
		if a.enum == nil {
			return fmt.Errorf("attribute %s: unknown table %q", a.Name, a.Table)
		}
	default:
		return fmt.Errorf("attribute %s: unknown kind %q", a.Name, a.Kind)
	}
	if lo, hi := a.bounds(); lo > hi {
		return fmt.Errorf("attribute %s: min %g > max %g", a.Name, lo, hi)
	}
	return nil
}

// setLine 渲染设置命令。值位于调用方参数位置 3（选择器、属性 ID 之后）。
func (a *Attribute) setLine(sel Selector, v any) (string, error) {
	header, err := Expand(a.Command, sel)
	if err != nil {
		return "", err
	}
	c := NewCommand(header)
	lo, hi := a.bounds()
	switch a.Kind {
	case AttrInt:
		n := v.(int)
		if float64(n) < lo || float64(n) > hi {
			return "", NewParameterError(3, a.Name, n, fmt.Sprintf("out of range [%g, %g]", lo, hi))
		}
		c.Int(n)
	case AttrFloat:
		c.FloatIn(v.(float64), lo, hi, 3, a.Name)
	case AttrBool:
		c.Bool(v.(bool))
	case AttrString:
		c.Quoted(v.(string))
	case AttrEnum:
		c.Enum(a.enum, v.(int), 3, a.Name)
	}
	return c.Line()
}

// queryLine 渲染读取命令。
func (a *Attribute) queryLine(sel Selector) (string, error) {
	header, err := Expand(a.Command, sel)
	if err != nil {
		return "", err
	}
	return NewCommand(header).Query()
}

// parseBool 接受 1/0 与 ON/OFF。
func parseBool(tok string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(tok)) {
	case "1", "ON":
		return true, true
	case "0", "OFF":
		return false, true
	}
	if x, err := strconv.ParseFloat(strings.TrimSpace(tok), 64); err == nil {
		return x != 0, true
	}
	return false, false
}
