package gospecan

import (
	"fmt"
	"time"
)

// Measurement 是目录中一个表格查询的定义：
// 查询模板、选择器模板与响应 Schema。
type Measurement struct {
	Kind        string
	Description string
	Query       string
	Selector    SelectorTemplate
	Schema      *Schema
	Timeout     time.Duration
}

// Command 依据 args 渲染查询命令。
func (m *Measurement) Command(args Args) (string, error) {
	sel, err := m.Selector.Resolve(args)
	if err != nil {
		return "", err
	}
	return Expand(m.Query, sel)
}

// Params 返回查询需要的参数名。
func (m *Measurement) Params() []string {
	return m.Selector.Params()
}

func (m *Measurement) String() string {
	return fmt.Sprintf("%s (%s, %d fields)", m.Kind, m.Query, m.Schema.Width())
}
