package hislip

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/enbility/zeroconf/v3"
)

// ServiceType 是 HiSLIP 仪器在 DNS-SD 中公布的服务类型。
const ServiceType = "_hislip._tcp"

const mdnsDomain = "local"

// Instrument 是通过 mDNS 发现的一台仪器。
type Instrument struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	Text      map[string]string // TXT 记录，例如 Manufacturer、Model
}

// Address 返回可直接用于 Dial 的 host:port，优先使用 IPv4 地址。
func (i *Instrument) Address() string {
	host := strings.TrimSuffix(i.Host, ".")
	if len(i.Addresses) > 0 {
		host = i.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(i.Port))
}

func (i *Instrument) String() string {
	model := strings.TrimSpace(i.Text["Manufacturer"] + " " + i.Text["Model"])
	if model == "" {
		return fmt.Sprintf("%s (%s)", i.Instance, i.Address())
	}
	return fmt.Sprintf("%s [%s] (%s)", i.Instance, model, i.Address())
}

// Discover 浏览本地网络上的 HiSLIP 仪器，直到 ctx 结束。
// iface 非空时只在该网络接口上查询。结果按实例名排序，同名实例的地址被合并。
func Discover(ctx context.Context, iface string) ([]*Instrument, error) {
	var opts []zeroconf.ClientOption
	if iface != "" {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", iface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*ifi}))
	}

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() {
		errc <- zeroconf.Browse(ctx, ServiceType, mdnsDomain, entries, removed, opts...)
	}()

	found := make(map[string]*Instrument)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			merge(found, fromEntry(e))
		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			delete(found, e.Instance)
		case err := <-errc:
			if err != nil {
				return nil, fmt.Errorf("browse %s: %w", ServiceType, err)
			}
			errc = nil
		case <-ctx.Done():
			return sorted(found), nil
		}
	}
}

func fromEntry(e *zeroconf.ServiceEntry) *Instrument {
	inst := &Instrument{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
		Text:     make(map[string]string, len(e.Text)),
	}
	for _, ip := range e.AddrIPv4 {
		inst.Addresses = append(inst.Addresses, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		inst.Addresses = append(inst.Addresses, ip.String())
	}
	for _, kv := range e.Text {
		k, v, _ := strings.Cut(kv, "=")
		inst.Text[k] = v
	}
	if inst.Port == 0 {
		inst.Port = DefaultPort
	}
	return inst
}

func merge(found map[string]*Instrument, inst *Instrument) {
	existing, ok := found[inst.Instance]
	if !ok {
		found[inst.Instance] = inst
		return
	}
	seen := make(map[string]bool, len(existing.Addresses))
	for _, a := range existing.Addresses {
		seen[a] = true
	}
	for _, a := range inst.Addresses {
		if !seen[a] {
			existing.Addresses = append(existing.Addresses, a)
		}
	}
}

func sorted(found map[string]*Instrument) []*Instrument {
	out := make([]*Instrument, 0, len(found))
	for _, inst := range found {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
