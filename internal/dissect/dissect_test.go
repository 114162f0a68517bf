/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package dissect

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ti-mo/conntrack"

	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
	"github.com/tschaefer/pktfilter/internal/geoip"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x1b, 0x21, 0x01, 0x02, 0x03}
	dstMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	epoch  = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func capture(data []byte, ts time.Time) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
}

func httpFrame(t *testing.T) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	tcp := &layers.TCP{SrcPort: 51234, DstPort: 80, Seq: 1000, SYN: false, ACK: true, PSH: true, Window: 512}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	return serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		ip, tcp,
		gopacket.Payload("GET / HTTP/1.1\r\n"),
	)
}

func dnsFrame(t *testing.T) []byte {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(192, 168, 1, 1),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	dns := &layers.DNS{
		ID: 0x1234,
		RD: true,
		Questions: []layers.DNSQuestion{
			{Name: []byte("www.example.com"), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
	}

	return serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 100, Priority: 3, Type: layers.EthernetTypeIPv4},
		ip, udp, dns,
	)
}

func match(t *testing.T, pkt *Packet, text string) bool {
	t.Helper()
	f, err := filter.Compile(text, fields.Default())
	require.NoError(t, err, text)
	return f.Match(pkt)
}

func occurrence(t *testing.T, pkt *Packet, name string) filter.Occurrence {
	t.Helper()
	occs := pkt.Occurrences(fields.Default().Key(name))
	require.NotEmpty(t, occs, name)
	return occs[0]
}

func TestDissect_TCP(t *testing.T) {
	data := httpFrame(t)
	pkt := New(fields.Default(), nil).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	assert.Equal(t, 1, pkt.Number)
	assert.Equal(t, []string{"eth", "ip", "tcp"}, pkt.Protocols())
	assert.Equal(t, "TCP 10.0.0.1:51234 -> 10.0.0.2:80", pkt.Summary)

	tests := []struct {
		name   string
		offset int
		length int
		value  string
	}{
		{"eth.dst", 0, 6, "aa:bb:cc:dd:ee:ff"},
		{"eth.src", 6, 6, "00:1b:21:01:02:03"},
		{"eth.type", 12, 2, "2048"},
		{"ip", 14, len(data) - 14, ""},
		{"ip.ttl", 22, 1, "64"},
		{"ip.proto", 23, 1, "6"},
		{"ip.src", 26, 4, "10.0.0.1"},
		{"ip.dst", 30, 4, "10.0.0.2"},
		{"tcp.srcport", 34, 2, "51234"},
		{"tcp.dstport", 36, 2, "80"},
		{"tcp.seq", 38, 4, "1000"},
		{"tcp.window_size", 48, 2, "512"},
		{"tcp.payload", 54, 16, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := occurrence(t, pkt, tt.name)
			assert.Equal(t, tt.offset, o.Offset)
			assert.Equal(t, tt.length, o.Length)
			assert.Equal(t, 1, o.Layer)
			if tt.value != "" {
				assert.Equal(t, tt.value, o.Value.String())
			}
			if o.Raw != nil {
				assert.Equal(t, data[tt.offset:tt.offset+tt.length], o.Raw)
			}
		})
	}

	ports := pkt.Occurrences(fields.Default().Key("tcp.port"))
	require.Len(t, ports, 2)
	assert.Equal(t, filter.Uint(51234), ports[0].Value)
	assert.Equal(t, filter.Uint(80), ports[1].Value)
}

func TestDissect_Filters(t *testing.T) {
	http := httpFrame(t)
	dns := dnsFrame(t)

	d := New(fields.Default(), nil)
	httpPkt := d.Dissect(http, capture(http, epoch), layers.LinkTypeEthernet)
	dnsPkt := d.Dissect(dns, capture(dns, epoch.Add(time.Second)), layers.LinkTypeEthernet)

	tests := []struct {
		filter string
		http   bool
		dns    bool
	}{
		{"tcp", true, false},
		{"udp and dns", false, true},
		{"tcp.port == 80 and ip.src == 10.0.0.1", true, false},
		{"ip.addr == 192.168.1.0/24", false, true},
		{"tcp.flags.ack and not tcp.flags.syn", true, false},
		{"tcp.flags & 0x18 == 0x18", true, false},
		{`tcp.payload contains "GET"`, true, false},
		{"tcp.payload[0:3] == 47:45:54", true, false},
		{"tcp[2:2] == 00:50", true, false},
		{"vlan.id == 100 and vlan.priority == 3", false, true},
		{`dns.qry.name == "www.example.com"`, false, true},
		{`dns.qry.name matches "EXAMPLE\\.com$"`, false, true},
		{"dns.flags.response", false, false},
		{"dns.count.queries == 1", false, true},
		{"udp.len == 41", false, true},
		{`frame.protocols contains "vlan"`, false, true},
		{"frame.number == 2", false, true},
		{"eth.addr == 00:1b:21:01:02:03", true, true},
		{"ip.ttl === 64", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			assert.Equal(t, tt.http, match(t, httpPkt, tt.filter), "http")
			assert.Equal(t, tt.dns, match(t, dnsPkt, tt.filter), "dns")
		})
	}
}

func TestDissect_Locations(t *testing.T) {
	data := httpFrame(t)
	pkt := New(fields.Default(), nil).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	f, err := filter.Compile("tcp.port == 80 and ip.src == 10.0.0.1", fields.Default())
	require.NoError(t, err)

	ok, locs := f.MatchLocations(pkt)
	require.True(t, ok)

	regions := make(map[int]int)
	for _, l := range locs {
		regions[l.Offset] = l.Length
	}
	assert.Equal(t, map[int]int{26: 4, 36: 2}, regions)
}

func TestDissect_Layers(t *testing.T) {
	outer := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolIPv4,
		SrcIP:    net.IPv4(198, 51, 100, 1),
		DstIP:    net.IPv4(198, 51, 100, 2),
	}
	inner := &layers.IPv4{
		Version:  4,
		TTL:      32,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 1, 1, 1),
		DstIP:    net.IPv4(10, 2, 2, 2),
	}
	udp := &layers.UDP{SrcPort: 1000, DstPort: 2000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(inner))

	data := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		outer, inner, udp, gopacket.Payload{1, 2, 3, 4},
	)
	pkt := New(fields.Default(), nil).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	assert.Equal(t, []string{"eth", "ip", "ip", "udp"}, pkt.Protocols())
	assert.Equal(t, 2, pkt.LayerCount(fields.Default().Key("ip.src")))
	assert.Equal(t, "UDP 10.1.1.1:1000 -> 10.2.2.2:2000", pkt.Summary)

	assert.True(t, match(t, pkt, "ip.src#1 == 198.51.100.1"))
	assert.True(t, match(t, pkt, "ip.src#2 == 10.1.1.1"))
	assert.True(t, match(t, pkt, "ip.src#-1 == 10.1.1.1"))
	assert.False(t, match(t, pkt, "ip.src#1 == 10.1.1.1"))
	assert.True(t, match(t, pkt, "count(ip.src) == 2"))
	assert.True(t, match(t, pkt, "udp.payload == 01:02:03:04"))
}

func TestDissect_IPv6(t *testing.T) {
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   255,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
	icmp := &layers.ICMPv6{TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeEchoRequest, 0)}
	require.NoError(t, icmp.SetNetworkLayerForChecksum(ip))

	data := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6},
		ip, icmp, gopacket.Payload{0, 1, 0, 1},
	)
	pkt := New(fields.Default(), nil).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	assert.Equal(t, "ICMPV6 2001:db8::1 -> 2001:db8::2", pkt.Summary)
	assert.Equal(t, 22, occurrence(t, pkt, "ipv6.src").Offset)
	assert.True(t, match(t, pkt, "ipv6.addr == 2001:db8::/32 and icmpv6.type == 128"))
	assert.True(t, match(t, pkt, "ipv6.hop_limit == 255"))
	assert.False(t, match(t, pkt, "ip"))
}

func TestDissect_Truncated(t *testing.T) {
	data := httpFrame(t)[:20]
	pkt := New(fields.Default(), nil).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	assert.True(t, match(t, pkt, "eth.src == 00:1b:21:01:02:03"))
	assert.False(t, match(t, pkt, "ip"))
	assert.False(t, match(t, pkt, "ip.ttl == 0"))
	assert.False(t, match(t, pkt, "ip.src"))
	assert.True(t, match(t, pkt, "frame.cap_len == 20"))
	assert.Equal(t, "ETH", pkt.Summary)
	assert.Equal(t, []string{"eth"}, pkt.Protocols())
}

func TestDissect_TruncatedTransport(t *testing.T) {
	data := httpFrame(t)[:40]
	pkt := New(fields.Default(), nil).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	assert.True(t, match(t, pkt, "ip.ttl == 64"))
	assert.False(t, match(t, pkt, "tcp"))
	assert.False(t, match(t, pkt, "tcp.port == 0"))
	assert.Equal(t, "IP 10.0.0.1 -> 10.0.0.2", pkt.Summary)

	for _, name := range []string{"ip.src", "ip.dst", "ip.ttl"} {
		o := occurrence(t, pkt, name)
		assert.LessOrEqual(t, o.Offset+o.Length, len(data), name)
	}
}

func TestDissect_FrameTiming(t *testing.T) {
	data := httpFrame(t)
	d := New(fields.Default(), nil)

	var pkt *Packet
	for _, offset := range []time.Duration{0, time.Second, 3 * time.Second} {
		pkt = d.Dissect(data, capture(data, epoch.Add(offset)), layers.LinkTypeEthernet)
	}

	assert.Equal(t, 3, pkt.Number)
	delta, _ := pkt.Value(fields.Default().Key("frame.time_delta"))
	assert.Equal(t, filter.Duration(2*time.Second), delta)
	relative, _ := pkt.Value(fields.Default().Key("frame.time_relative"))
	assert.Equal(t, filter.Duration(3*time.Second), relative)
	assert.True(t, match(t, pkt, "frame.time_delta > 1.5"))
}

type locations map[netip.Addr]*geoip.Location

func (l locations) Location(ip netip.Addr) *geoip.Location {
	return l[ip]
}

func TestDissect_GeoIP(t *testing.T) {
	geo := locations{
		netip.MustParseAddr("10.0.0.2"): {Country: "Germany", City: "Berlin"},
	}
	data := httpFrame(t)
	pkt := New(fields.Default(), geo).Dissect(data, capture(data, epoch), layers.LinkTypeEthernet)

	assert.True(t, match(t, pkt, `ip.geoip.dst_country == "Germany"`))
	assert.True(t, match(t, pkt, `ip.geoip.city == "Berlin"`))
	assert.False(t, match(t, pkt, "ip.geoip.src_country"))
	assert.Equal(t, 30, occurrence(t, pkt, "ip.geoip.country").Offset)
}

func TestDissect_Flow(t *testing.T) {
	ev := conntrack.Event{
		Type: conntrack.EventNew,
		Flow: &conntrack.Flow{
			ID:   7,
			Mark: 0x10,
			TupleOrig: conntrack.Tuple{
				IP: conntrack.IPTuple{
					SourceAddress:      netip.MustParseAddr("10.0.0.1"),
					DestinationAddress: netip.MustParseAddr("10.0.0.2"),
				},
				Proto: conntrack.ProtoTuple{Protocol: 6, SourcePort: 51234, DestinationPort: 443},
			},
			ProtoInfo:    conntrack.ProtoInfo{TCP: &conntrack.ProtoInfoTCP{State: 3}},
			CountersOrig: conntrack.Counter{Packets: 10, Bytes: 1500},
			Timeout:      120,
		},
	}

	pkt := New(fields.Default(), nil).Flow(ev, epoch)

	assert.Equal(t, "NEW TCP 10.0.0.1:51234 -> 10.0.0.2:443", pkt.Summary)
	assert.Equal(t, []string{"ct", "ip", "tcp"}, pkt.Protocols())

	tests := []struct {
		filter   string
		expected bool
	}{
		{`ct.type == "NEW" and ct.state == "ESTABLISHED"`, true},
		{"ct.id == 7 and ct.mark & 0x10", true},
		{"ct.orig.bytes > 1000 and ct.reply.bytes == 0", true},
		{"ct.timeout == 120", true},
		{"tcp.port == 443 and ip.addr == 10.0.0.0/8", true},
		{"udp", false},
		{"tcp.payload", false},
		{"frame.len == 0", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			assert.Equal(t, tt.expected, match(t, pkt, tt.filter))
		})
	}

	_, locs := mustLocations(t, pkt, "tcp.port == 443")
	require.Len(t, locs, 1)
	assert.Zero(t, locs[0].Length)
}

func TestDissect_FlowWithoutFlow(t *testing.T) {
	pkt := New(fields.Default(), nil).Flow(conntrack.Event{Type: conntrack.EventDestroy}, epoch)

	assert.Equal(t, "CT", pkt.Summary)
	assert.True(t, match(t, pkt, "ct"))
	assert.False(t, match(t, pkt, "ct.id"))
}

func mustLocations(t *testing.T, pkt *Packet, text string) (bool, []filter.Location) {
	t.Helper()
	f, err := filter.Compile(text, fields.Default())
	require.NoError(t, err)
	return f.MatchLocations(pkt)
}
