/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package dissect

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
	"github.com/tschaefer/pktfilter/internal/geoip"
)

// Locator resolves addresses to geographical locations.
type Locator interface {
	Location(ip netip.Addr) *geoip.Location
}

// Dissector turns captured frames and conntrack events into Packets.
// Frames are numbered and timed relative to each other, so a Dissector
// must be fed from a single goroutine.
type Dissector struct {
	reg   *fields.Registry
	geo   Locator
	count int
	first time.Time
	prev  time.Time
}

// New returns a Dissector for reg. geo may be nil.
func New(reg *fields.Registry, geo Locator) *Dissector {
	return &Dissector{reg: reg, geo: geo}
}

// endpoints collects what the summary line shows.
type endpoints struct {
	proto        string
	src, dst     netip.Addr
	sport, dport uint16
	ports        bool
}

func (e *endpoints) String() string {
	if !e.src.IsValid() {
		return strings.ToUpper(e.proto)
	}
	if !e.ports {
		return fmt.Sprintf("%s %s -> %s", strings.ToUpper(e.proto), e.src, e.dst)
	}
	return fmt.Sprintf("%s %s -> %s",
		strings.ToUpper(e.proto),
		netip.AddrPortFrom(e.src, e.sport),
		netip.AddrPortFrom(e.dst, e.dport),
	)
}

// Dissect decodes one captured frame. Undecodable trailing data is
// ignored, everything decoded up to that point is kept.
func (d *Dissector) Dissect(data []byte, ci gopacket.CaptureInfo, link gopacket.Decoder) *Packet {
	pkt := d.next(data, ci.Timestamp)
	b := newBuilder(d.reg, pkt)

	b.protocol("frame", 0, len(data))
	d.frame(b, ci.Length, len(data))

	var ep endpoints
	decoded := gopacket.NewPacket(data, link, gopacket.DecodeOptions{NoCopy: true})
	off := 0
	for _, l := range decoded.Layers() {
		if !complete(l) {
			break
		}
		base := off
		off += len(l.LayerContents())
		span := len(l.LayerContents()) + len(l.LayerPayload())

		switch x := l.(type) {
		case *layers.Ethernet:
			b.protocol("eth", base, span)
			d.ethernet(b, base, x)
			ep.proto = "eth"
		case *layers.Dot1Q:
			b.protocol("vlan", base, span)
			d.vlan(b, base, x)
		case *layers.ARP:
			b.protocol("arp", base, span)
			d.arp(b, base, x)
			ep.proto = "arp"
		case *layers.IPv4:
			b.protocol("ip", base, span)
			d.ipv4(b, base, x, &ep)
		case *layers.IPv6:
			b.protocol("ipv6", base, span)
			d.ipv6(b, base, x, &ep)
		case *layers.ICMPv4:
			b.protocol("icmp", base, span)
			d.icmpv4(b, base, x)
			ep.proto = "icmp"
		case *layers.ICMPv6:
			b.protocol("icmpv6", base, span)
			d.icmpv6(b, base, x)
			ep.proto = "icmpv6"
		case *layers.TCP:
			b.protocol("tcp", base, span)
			d.tcp(b, base, x, &ep)
		case *layers.UDP:
			b.protocol("udp", base, span)
			d.udp(b, base, x, &ep)
		case *layers.DNS:
			b.protocol("dns", base, span)
			d.dns(b, base, span, x)
			ep.proto = "dns"
		}
	}
	if failure := decoded.ErrorLayer(); failure != nil {
		slog.Debug("Failed to decode frame.", "number", pkt.Number, "error", failure.Error())
	}

	pkt.Summary = ep.String()
	return b.finish()
}

// complete reports whether l carries a decoded header. gopacket keeps a
// layer whose decoding failed, but without its header bytes.
func complete(l gopacket.Layer) bool {
	if _, ok := l.(*gopacket.DecodeFailure); ok {
		return false
	}
	return len(l.LayerContents()) > 0
}

func (d *Dissector) next(data []byte, ts time.Time) *Packet {
	d.count++
	if d.count == 1 {
		d.first, d.prev = ts, ts
	}
	return &Packet{Number: d.count, Timestamp: ts, Data: data}
}

func (d *Dissector) frame(b *builder, wire, captured int) {
	b.meta("frame.number", filter.Uint(b.pkt.Number))
	b.meta("frame.len", filter.Uint(wire))
	b.meta("frame.cap_len", filter.Uint(captured))
	b.meta("frame.time_delta", filter.Duration(b.pkt.Timestamp.Sub(d.prev)))
	b.meta("frame.time_relative", filter.Duration(b.pkt.Timestamp.Sub(d.first)))
	d.prev = b.pkt.Timestamp
}

func (d *Dissector) ethernet(b *builder, base int, eth *layers.Ethernet) {
	b.field("eth.dst", base, 6, filter.Ether(eth.DstMAC))
	b.field("eth.src", base+6, 6, filter.Ether(eth.SrcMAC))
	b.field("eth.addr", base, 6, filter.Ether(eth.DstMAC))
	b.field("eth.addr", base+6, 6, filter.Ether(eth.SrcMAC))
	b.field("eth.type", base+12, 2, filter.Uint(eth.EthernetType))
}

func (d *Dissector) vlan(b *builder, base int, q *layers.Dot1Q) {
	b.bits("vlan.priority", base, 1, filter.Uint(q.Priority))
	b.bits("vlan.dei", base, 1, filter.Bool(q.DropEligible))
	b.bits("vlan.id", base, 2, filter.Uint(q.VLANIdentifier))
	b.field("vlan.etype", base+2, 2, filter.Uint(q.Type))
}

func (d *Dissector) arp(b *builder, base int, a *layers.ARP) {
	hw, proto := int(a.HwAddressSize), int(a.ProtAddressSize)
	off := base + 8

	b.field("arp.opcode", base+6, 2, filter.Uint(a.Operation))
	b.field("arp.src.hw_mac", off, hw, filter.Ether(a.SourceHwAddress))
	off += hw
	if v, ok := addr4(a.SourceProtAddress); ok {
		b.field("arp.src.proto_ipv4", off, proto, v)
	}
	off += proto
	b.field("arp.dst.hw_mac", off, hw, filter.Ether(a.DstHwAddress))
	off += hw
	if v, ok := addr4(a.DstProtAddress); ok {
		b.field("arp.dst.proto_ipv4", off, proto, v)
	}
}

func (d *Dissector) ipv4(b *builder, base int, ip *layers.IPv4, ep *endpoints) {
	b.bits("ip.version", base, 1, filter.Uint(ip.Version))
	b.bits("ip.hdr_len", base, 1, filter.Uint(int(ip.IHL)*4))
	b.field("ip.dsfield", base+1, 1, filter.Uint(ip.TOS))
	b.field("ip.len", base+2, 2, filter.Uint(ip.Length))
	b.field("ip.id", base+4, 2, filter.Uint(ip.Id))
	b.bits("ip.flags", base+6, 1, filter.Uint(ip.Flags))
	b.bits("ip.flags.df", base+6, 1, filter.Bool(ip.Flags&layers.IPv4DontFragment != 0))
	b.bits("ip.flags.mf", base+6, 1, filter.Bool(ip.Flags&layers.IPv4MoreFragments != 0))
	b.bits("ip.frag_offset", base+6, 2, filter.Uint(ip.FragOffset))
	b.field("ip.ttl", base+8, 1, filter.Uint(ip.TTL))
	b.field("ip.proto", base+9, 1, filter.Uint(ip.Protocol))
	b.field("ip.checksum", base+10, 2, filter.Uint(ip.Checksum))

	src, srcOK := addr4(ip.SrcIP)
	dst, dstOK := addr4(ip.DstIP)
	if srcOK {
		b.field("ip.src", base+12, 4, src)
		b.field("ip.addr", base+12, 4, src)
	}
	if dstOK {
		b.field("ip.dst", base+16, 4, dst)
		b.field("ip.addr", base+16, 4, dst)
	}
	d.locate(b, base+12, 4, ip.SrcIP, "src")
	d.locate(b, base+16, 4, ip.DstIP, "dst")

	ep.proto = "ip"
	ep.src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
	ep.dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
	ep.ports = false
}

func (d *Dissector) ipv6(b *builder, base int, ip *layers.IPv6, ep *endpoints) {
	b.bits("ipv6.version", base, 1, filter.Uint(ip.Version))
	b.bits("ipv6.tclass", base, 2, filter.Uint(ip.TrafficClass))
	b.bits("ipv6.flow", base+1, 3, filter.Uint(ip.FlowLabel))
	b.field("ipv6.plen", base+4, 2, filter.Uint(ip.Length))
	b.field("ipv6.nxt", base+6, 1, filter.Uint(ip.NextHeader))
	b.field("ipv6.hlim", base+7, 1, filter.Uint(ip.HopLimit))

	if v, ok := addr16(ip.SrcIP); ok {
		b.field("ipv6.src", base+8, 16, v)
		b.field("ipv6.addr", base+8, 16, v)
	}
	if v, ok := addr16(ip.DstIP); ok {
		b.field("ipv6.dst", base+24, 16, v)
		b.field("ipv6.addr", base+24, 16, v)
	}
	d.locate(b, base+8, 16, ip.SrcIP, "src")
	d.locate(b, base+24, 16, ip.DstIP, "dst")

	ep.proto = "ipv6"
	ep.src, _ = netip.AddrFromSlice(ip.SrcIP.To16())
	ep.dst, _ = netip.AddrFromSlice(ip.DstIP.To16())
	ep.ports = false
}

// locate adds the ip.geoip fields of one address. They are attributed to
// the region of the address.
func (d *Dissector) locate(b *builder, off, length int, ip net.IP, dir string) {
	if d.geo == nil {
		return
	}
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return
	}
	loc := d.geo.Location(a.Unmap())
	if loc == nil {
		return
	}
	if loc.Country != "" {
		b.bits("ip.geoip."+dir+"_country", off, length, filter.String(loc.Country))
		b.bits("ip.geoip.country", off, length, filter.String(loc.Country))
	}
	if loc.City != "" {
		b.bits("ip.geoip."+dir+"_city", off, length, filter.String(loc.City))
		b.bits("ip.geoip.city", off, length, filter.String(loc.City))
	}
}

func (d *Dissector) icmpv4(b *builder, base int, icmp *layers.ICMPv4) {
	b.field("icmp.type", base, 1, filter.Uint(icmp.TypeCode.Type()))
	b.field("icmp.code", base+1, 1, filter.Uint(icmp.TypeCode.Code()))
	b.field("icmp.checksum", base+2, 2, filter.Uint(icmp.Checksum))
	b.field("icmp.ident", base+4, 2, filter.Uint(icmp.Id))
	b.field("icmp.seq", base+6, 2, filter.Uint(icmp.Seq))
}

func (d *Dissector) icmpv6(b *builder, base int, icmp *layers.ICMPv6) {
	b.field("icmpv6.type", base, 1, filter.Uint(icmp.TypeCode.Type()))
	b.field("icmpv6.code", base+1, 1, filter.Uint(icmp.TypeCode.Code()))
	b.field("icmpv6.checksum", base+2, 2, filter.Uint(icmp.Checksum))
}

func (d *Dissector) tcp(b *builder, base int, tcp *layers.TCP, ep *endpoints) {
	b.field("tcp.srcport", base, 2, filter.Uint(tcp.SrcPort))
	b.field("tcp.dstport", base+2, 2, filter.Uint(tcp.DstPort))
	b.field("tcp.port", base, 2, filter.Uint(tcp.SrcPort))
	b.field("tcp.port", base+2, 2, filter.Uint(tcp.DstPort))
	b.field("tcp.seq", base+4, 4, filter.Uint(tcp.Seq))
	b.field("tcp.ack", base+8, 4, filter.Uint(tcp.Ack))
	b.bits("tcp.hdr_len", base+12, 1, filter.Uint(int(tcp.DataOffset)*4))

	flags := []struct {
		name string
		set  bool
		bit  uint64
	}{
		{"tcp.flags.fin", tcp.FIN, 0x001},
		{"tcp.flags.syn", tcp.SYN, 0x002},
		{"tcp.flags.reset", tcp.RST, 0x004},
		{"tcp.flags.push", tcp.PSH, 0x008},
		{"tcp.flags.ack", tcp.ACK, 0x010},
		{"tcp.flags.urg", tcp.URG, 0x020},
		{"tcp.flags.ece", tcp.ECE, 0x040},
		{"tcp.flags.cwr", tcp.CWR, 0x080},
	}
	var value uint64
	if tcp.NS {
		value |= 0x100
	}
	for _, f := range flags {
		if f.set {
			value |= f.bit
		}
		b.bits(f.name, base+13, 1, filter.Bool(f.set))
	}
	b.bits("tcp.flags", base+12, 2, filter.Uint(value))

	b.field("tcp.window_size", base+14, 2, filter.Uint(tcp.Window))
	b.field("tcp.checksum", base+16, 2, filter.Uint(tcp.Checksum))
	b.field("tcp.urgent_pointer", base+18, 2, filter.Uint(tcp.Urgent))

	payload := tcp.LayerPayload()
	b.meta("tcp.len", filter.Uint(len(payload)))
	if len(payload) > 0 {
		b.field("tcp.payload", base+len(tcp.LayerContents()), len(payload), filter.Bytes(payload))
	}

	ep.proto = "tcp"
	ep.sport, ep.dport, ep.ports = uint16(tcp.SrcPort), uint16(tcp.DstPort), true
}

func (d *Dissector) udp(b *builder, base int, udp *layers.UDP, ep *endpoints) {
	b.field("udp.srcport", base, 2, filter.Uint(udp.SrcPort))
	b.field("udp.dstport", base+2, 2, filter.Uint(udp.DstPort))
	b.field("udp.port", base, 2, filter.Uint(udp.SrcPort))
	b.field("udp.port", base+2, 2, filter.Uint(udp.DstPort))
	b.field("udp.length", base+4, 2, filter.Uint(udp.Length))
	b.field("udp.checksum", base+6, 2, filter.Uint(udp.Checksum))

	payload := udp.LayerPayload()
	if len(payload) > 0 {
		b.field("udp.payload", base+8, len(payload), filter.Bytes(payload))
	}

	ep.proto = "udp"
	ep.sport, ep.dport, ep.ports = uint16(udp.SrcPort), uint16(udp.DstPort), true
}

// dns adds the header fields at their offsets. Names and records are
// attributed to the whole message.
func (d *Dissector) dns(b *builder, base, span int, dns *layers.DNS) {
	b.field("dns.id", base, 2, filter.Uint(dns.ID))
	b.bits("dns.flags.response", base+2, 1, filter.Bool(dns.QR))
	b.bits("dns.flags.opcode", base+2, 1, filter.Uint(dns.OpCode))
	b.bits("dns.flags.rcode", base+3, 1, filter.Uint(dns.ResponseCode))
	b.field("dns.count.queries", base+4, 2, filter.Uint(dns.QDCount))
	b.field("dns.count.answers", base+6, 2, filter.Uint(dns.ANCount))

	for _, q := range dns.Questions {
		b.bits("dns.qry.name", base, span, filter.String(q.Name))
		b.bits("dns.qry.type", base, span, filter.Uint(q.Type))
	}
	for _, rr := range dns.Answers {
		b.bits("dns.resp.name", base, span, filter.String(rr.Name))
		b.bits("dns.resp.ttl", base, span, filter.Uint(rr.TTL))
		switch rr.Type {
		case layers.DNSTypeA:
			if v, ok := addr4(rr.IP); ok {
				b.bits("dns.a", base, span, v)
			}
		case layers.DNSTypeAAAA:
			if v, ok := addr16(rr.IP); ok {
				b.bits("dns.aaaa", base, span, v)
			}
		}
	}
}

func addr4(ip net.IP) (filter.Value, bool) {
	a, ok := netip.AddrFromSlice(ip.To4())
	if !ok {
		return nil, false
	}
	return filter.NewAddr(a), true
}

func addr16(ip net.IP) (filter.Value, bool) {
	a, ok := netip.AddrFromSlice(ip.To16())
	if !ok || len(ip) != net.IPv6len {
		return nil, false
	}
	return filter.NewAddr(a), true
}
