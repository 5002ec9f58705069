package gospecan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatFloat 以固定的高精度格式渲染浮点数（17 位有效数字），
// 保证仪器端解析后与原值一致。
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'e', 16, 64)
}

// CommandBuilder 渲染一条原始 SCPI 命令行：HEADER arg1,arg2,...
// 与 SelectorBuilder 一样，第一个失败的参数决定错误。
type CommandBuilder struct {
	header string
	args   []string
	err    error
}

// NewCommand 创建命令，header 可包含 fmt 占位符，
// 例如 NewCommand("CALC%d:LIM%d:BURS:ALL", win, lim)。
func NewCommand(header string, a ...any) *CommandBuilder {
	if len(a) > 0 {
		header = fmt.Sprintf(header, a...)
	}
	return &CommandBuilder{header: header}
}

func (c *CommandBuilder) add(s string) *CommandBuilder {
	if c.err == nil {
		c.args = append(c.args, s)
	}
	return c
}

func (c *CommandBuilder) fail(pos int, name string, v any, reason string) *CommandBuilder {
	if c.err == nil {
		c.err = NewParameterError(pos, name, v, reason)
	}
	return c
}

// Int 追加整数参数。
func (c *CommandBuilder) Int(v int) *CommandBuilder {
	return c.add(strconv.Itoa(v))
}

// IntIn 追加经范围检查的整数参数。
func (c *CommandBuilder) IntIn(v, min, max, pos int, name string) *CommandBuilder {
	if v < min || v > max {
		return c.fail(pos, name, v, fmt.Sprintf("out of range [%d, %d]", min, max))
	}
	return c.Int(v)
}

// IntIf 仅在 cond 为真时追加整数参数。
func (c *CommandBuilder) IntIf(cond bool, v int) *CommandBuilder {
	if !cond {
		return c
	}
	return c.Int(v)
}

// Float 追加浮点参数，NaN/Inf 视为参数错误（位置未知）。
func (c *CommandBuilder) Float(v float64) *CommandBuilder {
	return c.FloatIn(v, math.Inf(-1), math.Inf(1), 0, "value")
}

// FloatIn 追加经范围检查的浮点参数。
func (c *CommandBuilder) FloatIn(v, min, max float64, pos int, name string) *CommandBuilder {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return c.fail(pos, name, v, "not a finite number")
	}
	if v < min || v > max {
		return c.fail(pos, name, v, fmt.Sprintf("out of range [%g, %g]", min, max))
	}
	return c.add(FormatFloat(v))
}

// FloatIf 仅在 cond 为真时追加浮点参数，cond 为假时也不检查 v。
func (c *CommandBuilder) FloatIf(cond bool, v float64) *CommandBuilder {
	if !cond {
		return c
	}
	return c.Float(v)
}

// FloatInIf 仅在 cond 为真时追加经范围检查的浮点参数。
func (c *CommandBuilder) FloatInIf(cond bool, v, min, max float64, pos int, name string) *CommandBuilder {
	if !cond {
		return c
	}
	return c.FloatIn(v, min, max, pos, name)
}

// Enum 通过查找表将索引 v 翻译为关键字后追加。
func (c *CommandBuilder) Enum(t *LookupTable, v, pos int, name string) *CommandBuilder {
	kw, ok := t.Keyword(v)
	if !ok {
		return c.fail(pos, name, v, fmt.Sprintf("not a valid %s value", t.Name()))
	}
	return c.add(kw)
}

// EnumIf 仅在 cond 为真时追加枚举参数。
func (c *CommandBuilder) EnumIf(cond bool, t *LookupTable, v, pos int, name string) *CommandBuilder {
	if !cond {
		return c
	}
	return c.Enum(t, v, pos, name)
}

// Keyword 追加字面关键字。
func (c *CommandBuilder) Keyword(kw string) *CommandBuilder {
	return c.add(kw)
}

// Bool 追加 ON/OFF。
func (c *CommandBuilder) Bool(v bool) *CommandBuilder {
	if v {
		return c.add("ON")
	}
	return c.add("OFF")
}

// Quoted 追加带引号的字符串参数，内部引号按 SCPI 规则加倍。
func (c *CommandBuilder) Quoted(s string) *CommandBuilder {
	return c.add(quote(s))
}

// Err 返回第一个参数错误。
func (c *CommandBuilder) Err() error {
	return c.err
}

// Line 渲染设置命令（不含换行）。
func (c *CommandBuilder) Line() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if len(c.args) == 0 {
		return c.header, nil
	}
	return c.header + " " + strings.Join(c.args, ","), nil
}

// Query 渲染查询命令：HEADER? args。
func (c *CommandBuilder) Query() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	h := c.header
	if !strings.HasSuffix(h, "?") {
		h += "?"
	}
	if len(c.args) == 0 {
		return h, nil
	}
	return h + " " + strings.Join(c.args, ","), nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			q := s[:1]
			return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
		}
	}
	return s
}

// Expand 将模板中的 <Name> 占位符替换为选择器同名组件的实例 token。
// <Name#k> 引用第 k 个同名组件（<Name> 等同 <Name#1>）。
// <Name?> 是可选占位符，组件不存在时渲染为空。
// 模板中存在选择器无法提供的必需占位符时返回 ParameterError。
func Expand(template string, sel Selector) (string, error) {
	var out strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		name := rest[open+1 : open+end]
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		nth := 1
		if base, k, found := strings.Cut(name, "#"); found {
			n, err := strconv.Atoi(k)
			if err != nil || n < 1 {
				return "", NewParameterError(0, "template", template,
					fmt.Sprintf("bad component index in <%s>", name))
			}
			name, nth = base, n
		}
		inst, ok := sel.InstanceN(name, nth)
		if !ok && !optional {
			return "", NewParameterError(0, "selector", sel.String(),
				fmt.Sprintf("no %s component for %q", name, template))
		}
		out.WriteString(rest[:open])
		out.WriteString(inst)
		rest = rest[open+end+1:]
	}
}
