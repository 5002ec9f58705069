package gospecan

import (
	_ "embed"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/default.yaml
var defaultCatalogYAML []byte

// Catalog 是属性与测量定义的只读注册表，启动时加载。
type Catalog struct {
	Tables       Tables
	Attributes   map[int]*Attribute
	Measurements map[string]*Measurement

	byName map[string]*Attribute
}

type catalogDoc struct {
	Tables       map[string][]string        `yaml:"tables"`
	Attributes   []*Attribute               `yaml:"attributes"`
	Measurements map[string]*measurementDoc `yaml:"measurements"`
}

type measurementDoc struct {
	Description string           `yaml:"description"`
	Query       string           `yaml:"query"`
	Timeout     string           `yaml:"timeout"`
	Selector    SelectorTemplate `yaml:"selector"`
	Fields      []Field          `yaml:"fields"`
}

// LoadCatalog 解析 YAML 目录。内置表总是可用，目录中同名表会覆盖它们。
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse catalog")
	}

	c := &Catalog{
		Tables:       BuiltinTables(),
		Attributes:   make(map[int]*Attribute, len(doc.Attributes)),
		Measurements: make(map[string]*Measurement, len(doc.Measurements)),
		byName:       make(map[string]*Attribute, len(doc.Attributes)),
	}
	for name, kws := range doc.Tables {
		if len(kws) == 0 {
			return nil, errors.Errorf("table %s: no keywords", name)
		}
		c.Tables.Add(NewLookupTable(name, kws...))
	}

	for _, a := range doc.Attributes {
		if err := a.validate(c.Tables); err != nil {
			return nil, errors.Wrap(err, "catalog")
		}
		if _, dup := c.Attributes[a.ID]; dup {
			return nil, errors.Errorf("attribute %s: duplicate id %d", a.Name, a.ID)
		}
		if _, dup := c.byName[a.Name]; dup {
			return nil, errors.Errorf("attribute %d: duplicate name %s", a.ID, a.Name)
		}
		c.Attributes[a.ID] = a
		c.byName[a.Name] = a
	}

	for kind, md := range doc.Measurements {
		m, err := md.build(kind, c.Tables)
		if err != nil {
			return nil, errors.Wrapf(err, "measurement %s", kind)
		}
		c.Measurements[kind] = m
	}
	return c, nil
}

func (md *measurementDoc) build(kind string, tables Tables) (*Measurement, error) {
	if md.Query == "" {
		return nil, errors.New("no query")
	}
	m := &Measurement{
		Kind:        kind,
		Description: md.Description,
		Query:       md.Query,
		Selector:    md.Selector,
		Schema:      NewSchema(kind, md.Fields...),
	}
	if md.Timeout != "" {
		d, err := time.ParseDuration(md.Timeout)
		if err != nil {
			return nil, errors.Wrap(err, "timeout")
		}
		m.Timeout = d
	}
	if err := m.Selector.bind(tables); err != nil {
		return nil, err
	}
	if err := m.Schema.bind(tables); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadCatalogFile 从文件加载目录。
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return LoadCatalog(data)
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// DefaultCatalog 返回内置目录。内置目录无效属于程序错误，会 panic。
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		c, err := LoadCatalog(defaultCatalogYAML)
		if err != nil {
			panic("gospecan: default catalog: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Attribute 按 ID 查找属性。
func (c *Catalog) Attribute(id int) (*Attribute, error) {
	a, ok := c.Attributes[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAttribute, "id %d", id)
	}
	return a, nil
}

// AttributeByName 按名称查找属性。
func (c *Catalog) AttributeByName(name string) (*Attribute, error) {
	a, ok := c.byName[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAttribute, "name %s", name)
	}
	return a, nil
}

// Measurement 按种类查找测量。
func (c *Catalog) Measurement(kind string) (*Measurement, error) {
	m, ok := c.Measurements[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMeasurement, "%s", kind)
	}
	return m, nil
}

// Kinds 返回排序后的测量种类。
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.Measurements))
	for k := range c.Measurements {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// AttributeList 返回按 ID 排序的属性。
func (c *Catalog) AttributeList() []*Attribute {
	list := make([]*Attribute, 0, len(c.Attributes))
	for _, a := range c.Attributes {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
