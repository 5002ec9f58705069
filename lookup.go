package gospecan

import (
	"fmt"
	"sort"
)

// NotFound 是 token 不在查找表中时返回的索引。
const NotFound = -1

// LookupTable 是有序的 SCPI 关键字表，位置即枚举值。
// 构建后只读，可并发使用。
type LookupTable struct {
	name     string
	keywords []string
	index    map[string]int
}

// NewLookupTable 以给定关键字顺序创建查找表。
// 重复关键字以首次出现的位置为准。
func NewLookupTable(name string, keywords ...string) *LookupTable {
	t := &LookupTable{
		name:     name,
		keywords: append([]string(nil), keywords...),
		index:    make(map[string]int, len(keywords)),
	}
	for i, kw := range t.keywords {
		if _, dup := t.index[kw]; !dup {
			t.index[kw] = i
		}
	}
	return t
}

// Name 返回表名。
func (t *LookupTable) Name() string {
	return t.name
}

// Len 返回关键字数量。
func (t *LookupTable) Len() int {
	return len(t.keywords)
}

// Index 按精确匹配解析 token，未命中返回 NotFound。
func (t *LookupTable) Index(token string) int {
	if i, ok := t.index[token]; ok {
		return i
	}
	return NotFound
}

// Contains 返回 token 是否为表中的关键字。
func (t *LookupTable) Contains(token string) bool {
	_, ok := t.index[token]
	return ok
}

// Keyword 返回索引 i 处的关键字。
func (t *LookupTable) Keyword(i int) (string, bool) {
	if i < 0 || i >= len(t.keywords) {
		return "", false
	}
	return t.keywords[i], true
}

// Keywords 返回关键字副本。
func (t *LookupTable) Keywords() []string {
	return append([]string(nil), t.keywords...)
}

func (t *LookupTable) String() string {
	return fmt.Sprintf("%s%v", t.name, t.keywords)
}

// 常用表
var (
	AbsRel     = NewLookupTable("absRel", "ABS", "REL")
	PassFail   = NewLookupTable("status", "PASSED", "FAILED")
	OnOff      = NewLookupTable("onOff", "OFF", "ON")
	AutoManual = NewLookupTable("autoManual", "AUTO", "MAN")
)

// Tables 是表名到 LookupTable 的静态注册表。
// 启动时构建，之后只读。
type Tables map[string]*LookupTable

// Resolve 返回给定名称的表，未知时返回 nil。
func (r Tables) Resolve(name string) *LookupTable {
	return r[name]
}

// Add 以表名注册 t。
func (r Tables) Add(t *LookupTable) {
	r[t.name] = t
}

// Names 返回排序后的表名。
func (r Tables) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuiltinTables 返回包含常用表的新注册表。
func BuiltinTables() Tables {
	r := make(Tables)
	for _, t := range []*LookupTable{AbsRel, PassFail, OnOff, AutoManual} {
		r.Add(t)
	}
	return r
}
