/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package dissect

import (
	"syscall"
	"time"

	"github.com/ti-mo/conntrack"

	"github.com/tschaefer/pktfilter/internal/filter"
)

var tcpStates = map[uint8]string{
	0: "NONE",
	1: "SYN_SENT",
	2: "SYN_RECV",
	3: "ESTABLISHED",
	4: "FIN_WAIT",
	5: "CLOSE_WAIT",
	6: "LAST_ACK",
	7: "TIME_WAIT",
	8: "CLOSE",
}

// EventType names the kind of a conntrack event.
func EventType(ev conntrack.Event) string {
	switch ev.Type {
	case conntrack.EventNew:
		return "NEW"
	case conntrack.EventUpdate:
		return "UPDATE"
	case conntrack.EventDestroy:
		return "DESTROY"
	default:
		return ""
	}
}

// Flow maps a conntrack event onto the packet fields of its original
// tuple and the ct fields. None of them is backed by packet data.
func (d *Dissector) Flow(ev conntrack.Event, ts time.Time) *Packet {
	pkt := d.next(nil, ts)
	b := newBuilder(d.reg, pkt)

	b.protocol("frame", 0, 0)
	d.frame(b, 0, 0)

	flow := ev.Flow
	b.protocol("ct", 0, 0)
	if flow == nil {
		pkt.Summary = "CT"
		return b.finish()
	}
	b.meta("ct.id", filter.Uint(flow.ID))
	if t := EventType(ev); t != "" {
		b.meta("ct.type", filter.String(t))
	}
	if flow.ProtoInfo.TCP != nil {
		if state, ok := tcpStates[flow.ProtoInfo.TCP.State]; ok {
			b.meta("ct.state", filter.String(state))
		}
	}
	b.meta("ct.status", filter.Uint(flow.Status))
	b.meta("ct.mark", filter.Uint(flow.Mark))
	b.meta("ct.zone", filter.Uint(flow.Zone))
	b.meta("ct.timeout", filter.Duration(time.Duration(flow.Timeout)*time.Second))
	b.meta("ct.orig.packets", filter.Uint(flow.CountersOrig.Packets))
	b.meta("ct.orig.bytes", filter.Uint(flow.CountersOrig.Bytes))
	b.meta("ct.reply.packets", filter.Uint(flow.CountersReply.Packets))
	b.meta("ct.reply.bytes", filter.Uint(flow.CountersReply.Bytes))

	tuple := flow.TupleOrig
	src, dst := tuple.IP.SourceAddress.Unmap(), tuple.IP.DestinationAddress.Unmap()
	ep := endpoints{src: src, dst: dst}

	switch {
	case src.Is4():
		b.protocol("ip", 0, 0)
		b.meta("ip.proto", filter.Uint(tuple.Proto.Protocol))
		b.meta("ip.src", filter.NewAddr(src))
		b.meta("ip.dst", filter.NewAddr(dst))
		b.meta("ip.addr", filter.NewAddr(src))
		b.meta("ip.addr", filter.NewAddr(dst))
		ep.proto = "ip"
	case src.Is6():
		b.protocol("ipv6", 0, 0)
		b.meta("ipv6.nxt", filter.Uint(tuple.Proto.Protocol))
		b.meta("ipv6.src", filter.NewAddr(src))
		b.meta("ipv6.dst", filter.NewAddr(dst))
		b.meta("ipv6.addr", filter.NewAddr(src))
		b.meta("ipv6.addr", filter.NewAddr(dst))
		ep.proto = "ipv6"
	}
	if src.IsValid() {
		d.locate(b, 0, 0, src.AsSlice(), "src")
		d.locate(b, 0, 0, dst.AsSlice(), "dst")
	}

	sport, dport := tuple.Proto.SourcePort, tuple.Proto.DestinationPort
	switch tuple.Proto.Protocol {
	case syscall.IPPROTO_TCP:
		b.protocol("tcp", 0, 0)
		b.meta("tcp.srcport", filter.Uint(sport))
		b.meta("tcp.dstport", filter.Uint(dport))
		b.meta("tcp.port", filter.Uint(sport))
		b.meta("tcp.port", filter.Uint(dport))
		ep.proto, ep.sport, ep.dport, ep.ports = "tcp", sport, dport, true
	case syscall.IPPROTO_UDP:
		b.protocol("udp", 0, 0)
		b.meta("udp.srcport", filter.Uint(sport))
		b.meta("udp.dstport", filter.Uint(dport))
		b.meta("udp.port", filter.Uint(sport))
		b.meta("udp.port", filter.Uint(dport))
		ep.proto, ep.sport, ep.dport, ep.ports = "udp", sport, dport, true
	case syscall.IPPROTO_ICMP:
		b.protocol("icmp", 0, 0)
		ep.proto = "icmp"
	case syscall.IPPROTO_ICMPV6:
		b.protocol("icmpv6", 0, 0)
		ep.proto = "icmpv6"
	}

	pkt.Summary = EventType(ev) + " " + ep.String()
	return b.finish()
}
