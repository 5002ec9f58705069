package gospecan

import (
	"fmt"
	"strconv"
	"strings"
)

// Component 是选择器中的一级重复能力，例如 Win0 或 GSMS3。
type Component struct {
	Name     string // 能力名（如 "Win"、"TR"、"Z"）
	Instance string // 实例 token（如 "0"、"5"）
}

func (c Component) String() string {
	return c.Name + c.Instance
}

// Selector 是有序的重复能力组件列表。
type Selector []Component

// String 以逗号连接各组件，例如 "Win0,TR1"。
func (s Selector) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Instance 返回第一个名为 name 的组件的实例 token。
func (s Selector) Instance(name string) (string, bool) {
	return s.InstanceN(name, 1)
}

// InstanceN 返回第 n 个（从 1 开始）名为 name 的组件的实例 token，
// 用于同名组件重复出现的选择器，例如 "GSMS3,Sub1,Sub2"。
func (s Selector) InstanceN(name string, n int) (string, bool) {
	for _, c := range s {
		if c.Name != name {
			continue
		}
		if n--; n == 0 {
			return c.Instance, true
		}
	}
	return "", false
}

// ParseSelector 将已渲染的选择器字符串拆回组件。
// 每个组件末尾的数字为实例 token；无数字的组件整体作为 Name。
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sel := make(Selector, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, NewParameterError(i+1, "selector", s, "empty component")
		}
		cut := len(p)
		for cut > 0 && p[cut-1] >= '0' && p[cut-1] <= '9' {
			cut--
		}
		if cut == 0 {
			return nil, NewParameterError(i+1, "selector", s, fmt.Sprintf("component %q has no name", p))
		}
		sel = append(sel, Component{Name: p[:cut], Instance: p[cut:]})
	}
	return sel, nil
}

// SelectorBuilder 按顺序收集可选组件。
// 第一个失败的组件决定 Build 的错误，之后的组件被忽略。
type SelectorBuilder struct {
	sel Selector
	err error
}

// NewSelector 创建空的 SelectorBuilder。
func NewSelector() *SelectorBuilder {
	return &SelectorBuilder{}
}

// Index 追加经范围检查的数字组件 name+v。
// pos/arg 标识调用方参数，用于 ParameterError。
func (b *SelectorBuilder) Index(name string, v, min, max, pos int, arg string) *SelectorBuilder {
	if b.err != nil {
		return b
	}
	if v < min || v > max {
		b.err = NewParameterError(pos, arg, v, fmt.Sprintf("out of range [%d, %d]", min, max))
		return b
	}
	b.sel = append(b.sel, Component{Name: name, Instance: strconv.Itoa(v)})
	return b
}

// IndexIf 仅在 cond 为真时追加数字组件，cond 为假时也不检查 v。
func (b *SelectorBuilder) IndexIf(cond bool, name string, v, min, max, pos int, arg string) *SelectorBuilder {
	if !cond {
		return b
	}
	return b.Index(name, v, min, max, pos, arg)
}

// Enum 追加由查找表关键字给出的组件。
func (b *SelectorBuilder) Enum(t *LookupTable, v, pos int, arg string) *SelectorBuilder {
	if b.err != nil {
		return b
	}
	kw, ok := t.Keyword(v)
	if !ok {
		b.err = NewParameterError(pos, arg, v, fmt.Sprintf("not a valid %s value", t.Name()))
		return b
	}
	c, err := splitToken(kw)
	if err != nil {
		b.err = NewParameterError(pos, arg, v, err.Error())
		return b
	}
	b.sel = append(b.sel, c)
	return b
}

// Literal 追加固定组件，例如 "SC1"。
func (b *SelectorBuilder) Literal(token string) *SelectorBuilder {
	if b.err != nil {
		return b
	}
	c, err := splitToken(token)
	if err != nil {
		b.err = NewParameterError(0, "selector", token, err.Error())
		return b
	}
	b.sel = append(b.sel, c)
	return b
}

// LiteralIf 仅在 cond 为真时追加固定组件。
func (b *SelectorBuilder) LiteralIf(cond bool, token string) *SelectorBuilder {
	if !cond {
		return b
	}
	return b.Literal(token)
}

// fail 记录 err，除非之前的组件已经失败。
func (b *SelectorBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build 返回构建好的选择器或第一个错误。
func (b *SelectorBuilder) Build() (Selector, error) {
	if b.err != nil {
		return nil, b.err
	}
	return append(Selector(nil), b.sel...), nil
}

// String 是 Build 的字符串形式。
func (b *SelectorBuilder) String() (string, error) {
	sel, err := b.Build()
	if err != nil {
		return "", err
	}
	return sel.String(), nil
}

func splitToken(tok string) (Component, error) {
	sel, err := ParseSelector(tok)
	if err != nil {
		return Component{}, err
	}
	if len(sel) != 1 {
		return Component{}, fmt.Errorf("token %q must be a single component", tok)
	}
	return sel[0], nil
}

// Args 是按参数名给出的整数/枚举参数。
type Args map[string]int

// Condition 仅在参数 Param 的值属于 In 时成立。
type Condition struct {
	Param string `yaml:"param"`
	In    []int  `yaml:"in"`
}

func (c *Condition) holds(args Args) bool {
	v, ok := args[c.Param]
	if !ok {
		return false
	}
	for _, want := range c.In {
		if v == want {
			return true
		}
	}
	return false
}

// RepCapDef 描述模板中的一级组件。
// Table 非空时实例 token 取自查找表关键字（整体作为组件），否则为 Name+数字。
// Param 为空表示固定组件 Name。
type RepCapDef struct {
	Name  string     `yaml:"name"`
	Param string     `yaml:"param"`
	Min   int        `yaml:"min"`
	Max   int        `yaml:"max"`
	Table string     `yaml:"table"`
	When  *Condition `yaml:"when"`

	table *LookupTable
}

// SelectorTemplate 是目录中声明的选择器模板。
type SelectorTemplate []RepCapDef

// Params 返回模板引用的参数名（按出现顺序，去重）。
func (t SelectorTemplate) Params() []string {
	var names []string
	seen := make(map[string]bool)
	for _, d := range t {
		if d.Param != "" && !seen[d.Param] {
			seen[d.Param] = true
			names = append(names, d.Param)
		}
	}
	return names
}

// Resolve 依据 args 渲染选择器。
// 参数位置按模板中参数首次出现的顺序编号。
func (t SelectorTemplate) Resolve(args Args) (Selector, error) {
	pos := make(map[string]int)
	for i, p := range t.Params() {
		pos[p] = i + 1
	}

	b := NewSelector()
	for _, d := range t {
		if d.When != nil && !d.When.holds(args) {
			continue
		}
		if d.Param == "" {
			b.Literal(d.Name)
			continue
		}
		v, ok := args[d.Param]
		if !ok {
			b.fail(NewParameterError(pos[d.Param], d.Param, nil, "missing argument"))
			continue
		}
		if d.table != nil {
			b.Enum(d.table, v, pos[d.Param], d.Param)
		} else {
			b.Index(d.Name, v, d.Min, d.Max, pos[d.Param], d.Param)
		}
	}
	return b.Build()
}

// bind 解析 Table 引用。
func (t SelectorTemplate) bind(tables Tables) error {
	for i := range t {
		d := &t[i]
		if d.Table == "" {
			if d.Param != "" && d.Min > d.Max {
				return fmt.Errorf("selector component %s: min %d > max %d", d.Name, d.Min, d.Max)
			}
			continue
		}
		d.table = tables.Resolve(d.Table)
		if d.table == nil {
			return fmt.Errorf("selector component %s: unknown table %q", d.Name, d.Table)
		}
	}
	return nil
}
