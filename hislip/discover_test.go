package hislip

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(instance string, port int, ips ...string) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: mdnsDomain},
		HostName:      "fsw-101234.local.",
		Port:          port,
		Text:          []string{"Manufacturer=Rohde&Schwarz", "Model=FSW", "SerialNumber=101234"},
	}
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

func TestFromEntry(t *testing.T) {
	inst := fromEntry(entry("FSW-26 101234", 4880, "192.168.1.20", "fe80::1"))

	assert.Equal(t, "FSW-26 101234", inst.Instance)
	assert.Equal(t, []string{"192.168.1.20", "fe80::1"}, inst.Addresses)
	assert.Equal(t, "Rohde&Schwarz", inst.Text["Manufacturer"])
	assert.Equal(t, "192.168.1.20:4880", inst.Address())
	assert.Equal(t, "FSW-26 101234 [Rohde&Schwarz FSW] (192.168.1.20:4880)", inst.String())
}

func TestFromEntry_DefaultPortAndHost(t *testing.T) {
	inst := fromEntry(entry("bare", 0))
	assert.Equal(t, DefaultPort, inst.Port)
	assert.Equal(t, "fsw-101234.local:4880", inst.Address())

	inst.Text = nil
	assert.Equal(t, "bare (fsw-101234.local:4880)", inst.String())
}

func TestMergeAndSort(t *testing.T) {
	found := make(map[string]*Instrument)
	merge(found, fromEntry(entry("zeta", 4880, "10.0.0.2")))
	merge(found, fromEntry(entry("alpha", 4880, "10.0.0.1")))
	merge(found, fromEntry(entry("zeta", 4880, "10.0.0.2", "fe80::2")))

	list := sorted(found)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Instance)
	assert.Equal(t, "zeta", list[1].Instance)
	assert.Equal(t, []string{"10.0.0.2", "fe80::2"}, list[1].Addresses)
}
