/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package fields

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tschaefer/pktfilter/internal/filter"
)

// Registry is an immutable set of protocol fields. Deprecated aliases share
// the key of the field they stand for.
type Registry struct {
	byName map[string]*filter.FieldInfo
	byKey  map[filter.FieldKey]*filter.FieldInfo
	list   []*filter.FieldInfo
}

type def struct {
	name  string
	typ   filter.Type
	bits  int
	desc  string
	multi bool
}

type alias struct {
	name, target string
}

const (
	tUint  = filter.TypeUint
	tBool  = filter.TypeBool
	tStr   = filter.TypeString
	tProto = filter.TypeProtocol
)

var builtin = []def{
	{"frame", tProto, 0, "Frame", false},
	{"frame.number", tUint, 32, "Frame number", false},
	{"frame.len", tUint, 32, "Frame length on the wire", false},
	{"frame.cap_len", tUint, 32, "Frame length stored in the capture", false},
	{"frame.time_delta", filter.TypeDuration, 0, "Time since the previous frame", false},
	{"frame.time_relative", filter.TypeDuration, 0, "Time since the first frame", false},
	{"frame.protocols", tStr, 0, "Protocols in frame", false},

	{"eth", tProto, 0, "Ethernet", false},
	{"eth.dst", filter.TypeEther, 0, "Destination", false},
	{"eth.src", filter.TypeEther, 0, "Source", false},
	{"eth.addr", filter.TypeEther, 0, "Source or destination address", true},
	{"eth.type", tUint, 16, "Type", false},

	{"vlan", tProto, 0, "802.1Q Virtual LAN", false},
	{"vlan.priority", tUint, 3, "Priority", false},
	{"vlan.dei", tBool, 0, "Drop eligible indicator", false},
	{"vlan.id", tUint, 12, "VLAN identifier", false},
	{"vlan.etype", tUint, 16, "Type", false},

	{"arp", tProto, 0, "Address Resolution Protocol", false},
	{"arp.opcode", tUint, 16, "Opcode", false},
	{"arp.src.hw_mac", filter.TypeEther, 0, "Sender MAC address", false},
	{"arp.src.proto_ipv4", filter.TypeIPv4, 0, "Sender IP address", false},
	{"arp.dst.hw_mac", filter.TypeEther, 0, "Target MAC address", false},
	{"arp.dst.proto_ipv4", filter.TypeIPv4, 0, "Target IP address", false},

	{"ip", tProto, 0, "Internet Protocol Version 4", false},
	{"ip.version", tUint, 4, "Version", false},
	{"ip.hdr_len", tUint, 8, "Header length", false},
	{"ip.dsfield", tUint, 8, "Differentiated services field", false},
	{"ip.len", tUint, 16, "Total length", false},
	{"ip.id", tUint, 16, "Identification", false},
	{"ip.flags", tUint, 3, "Flags", false},
	{"ip.flags.df", tBool, 0, "Don't fragment", false},
	{"ip.flags.mf", tBool, 0, "More fragments", false},
	{"ip.frag_offset", tUint, 13, "Fragment offset", false},
	{"ip.ttl", tUint, 8, "Time to live", false},
	{"ip.proto", tUint, 8, "Protocol", false},
	{"ip.checksum", tUint, 16, "Header checksum", false},
	{"ip.src", filter.TypeIPv4, 0, "Source address", false},
	{"ip.dst", filter.TypeIPv4, 0, "Destination address", false},
	{"ip.addr", filter.TypeIPv4, 0, "Source or destination address", true},

	{"ip.geoip.src_country", tStr, 0, "Source country", false},
	{"ip.geoip.src_city", tStr, 0, "Source city", false},
	{"ip.geoip.dst_country", tStr, 0, "Destination country", false},
	{"ip.geoip.dst_city", tStr, 0, "Destination city", false},
	{"ip.geoip.country", tStr, 0, "Source or destination country", true},
	{"ip.geoip.city", tStr, 0, "Source or destination city", true},

	{"ipv6", tProto, 0, "Internet Protocol Version 6", false},
	{"ipv6.version", tUint, 4, "Version", false},
	{"ipv6.tclass", tUint, 8, "Traffic class", false},
	{"ipv6.flow", tUint, 20, "Flow label", false},
	{"ipv6.plen", tUint, 16, "Payload length", false},
	{"ipv6.nxt", tUint, 8, "Next header", false},
	{"ipv6.hlim", tUint, 8, "Hop limit", false},
	{"ipv6.src", filter.TypeIPv6, 0, "Source address", false},
	{"ipv6.dst", filter.TypeIPv6, 0, "Destination address", false},
	{"ipv6.addr", filter.TypeIPv6, 0, "Source or destination address", true},

	{"icmp", tProto, 0, "Internet Control Message Protocol", false},
	{"icmp.type", tUint, 8, "Type", false},
	{"icmp.code", tUint, 8, "Code", false},
	{"icmp.checksum", tUint, 16, "Checksum", false},
	{"icmp.ident", tUint, 16, "Identifier", false},
	{"icmp.seq", tUint, 16, "Sequence number", false},

	{"icmpv6", tProto, 0, "Internet Control Message Protocol v6", false},
	{"icmpv6.type", tUint, 8, "Type", false},
	{"icmpv6.code", tUint, 8, "Code", false},
	{"icmpv6.checksum", tUint, 16, "Checksum", false},

	{"tcp", tProto, 0, "Transmission Control Protocol", false},
	{"tcp.srcport", tUint, 16, "Source port", false},
	{"tcp.dstport", tUint, 16, "Destination port", false},
	{"tcp.port", tUint, 16, "Source or destination port", true},
	{"tcp.seq", tUint, 32, "Sequence number", false},
	{"tcp.ack", tUint, 32, "Acknowledgment number", false},
	{"tcp.hdr_len", tUint, 8, "Header length", false},
	{"tcp.flags", tUint, 12, "Flags", false},
	{"tcp.flags.fin", tBool, 0, "Fin", false},
	{"tcp.flags.syn", tBool, 0, "Syn", false},
	{"tcp.flags.reset", tBool, 0, "Reset", false},
	{"tcp.flags.push", tBool, 0, "Push", false},
	{"tcp.flags.ack", tBool, 0, "Acknowledgment", false},
	{"tcp.flags.urg", tBool, 0, "Urgent", false},
	{"tcp.flags.ece", tBool, 0, "ECN-Echo", false},
	{"tcp.flags.cwr", tBool, 0, "Congestion window reduced", false},
	{"tcp.window_size", tUint, 16, "Window", false},
	{"tcp.checksum", tUint, 16, "Checksum", false},
	{"tcp.urgent_pointer", tUint, 16, "Urgent pointer", false},
	{"tcp.len", tUint, 32, "TCP segment length", false},
	{"tcp.payload", filter.TypeBytes, 0, "TCP payload", false},

	{"udp", tProto, 0, "User Datagram Protocol", false},
	{"udp.srcport", tUint, 16, "Source port", false},
	{"udp.dstport", tUint, 16, "Destination port", false},
	{"udp.port", tUint, 16, "Source or destination port", true},
	{"udp.length", tUint, 16, "Length", false},
	{"udp.checksum", tUint, 16, "Checksum", false},
	{"udp.payload", filter.TypeBytes, 0, "UDP payload", false},

	{"dns", tProto, 0, "Domain Name System", false},
	{"dns.id", tUint, 16, "Transaction ID", false},
	{"dns.flags.response", tBool, 0, "Response", false},
	{"dns.flags.opcode", tUint, 4, "Opcode", false},
	{"dns.flags.rcode", tUint, 4, "Reply code", false},
	{"dns.count.queries", tUint, 16, "Questions", false},
	{"dns.count.answers", tUint, 16, "Answer RRs", false},
	{"dns.qry.name", tStr, 0, "Query name", true},
	{"dns.qry.type", tUint, 16, "Query type", true},
	{"dns.resp.name", tStr, 0, "Answer name", true},
	{"dns.resp.ttl", tUint, 32, "Time to live", true},
	{"dns.a", filter.TypeIPv4, 0, "Address", true},
	{"dns.aaaa", filter.TypeIPv6, 0, "AAAA address", true},

	{"ct", tProto, 0, "Connection tracking", false},
	{"ct.id", tUint, 32, "Flow identifier", false},
	{"ct.type", tStr, 0, "Event type", false},
	{"ct.state", tStr, 0, "TCP state", false},
	{"ct.status", tUint, 32, "Status bits", false},
	{"ct.mark", tUint, 32, "Mark", false},
	{"ct.zone", tUint, 16, "Zone", false},
	{"ct.timeout", filter.TypeDuration, 0, "Remaining timeout", false},
	{"ct.orig.packets", tUint, 64, "Packets in original direction", false},
	{"ct.orig.bytes", tUint, 64, "Bytes in original direction", false},
	{"ct.reply.packets", tUint, 64, "Packets in reply direction", false},
	{"ct.reply.bytes", tUint, 64, "Bytes in reply direction", false},
}

var aliases = []alias{
	{"tcp.flags.rst", "tcp.flags.reset"},
	{"udp.len", "udp.length"},
	{"ipv6.hop_limit", "ipv6.hlim"},
}

var defaultRegistry = build(builtin, aliases)

// Default returns the built-in registry.
func Default() *Registry {
	return defaultRegistry
}

func build(defs []def, aliases []alias) *Registry {
	r := &Registry{
		byName: make(map[string]*filter.FieldInfo, len(defs)+len(aliases)),
		byKey:  make(map[filter.FieldKey]*filter.FieldInfo, len(defs)),
	}

	for i, d := range defs {
		if _, ok := r.byName[d.name]; ok {
			panic(fmt.Sprintf("duplicate field %q", d.name))
		}
		f := &filter.FieldInfo{
			Key:         filter.FieldKey(i + 1),
			Name:        d.name,
			Description: d.desc,
			Type:        d.typ,
			Bits:        d.bits,
			Multiple:    d.multi,
		}
		r.byName[f.Name] = f
		r.byKey[f.Key] = f
		r.list = append(r.list, f)
	}

	for _, a := range aliases {
		target, ok := r.byName[a.target]
		if !ok {
			panic(fmt.Sprintf("alias %q for unknown field %q", a.name, a.target))
		}
		f := *target
		f.Name = a.name
		f.Deprecated = a.target
		r.byName[f.Name] = &f
		r.list = append(r.list, &f)
	}

	slices.SortFunc(r.list, func(x, y *filter.FieldInfo) int {
		return strings.Compare(x.Name, y.Name)
	})
	return r
}

// Lookup implements filter.Registry.
func (r *Registry) Lookup(name string) (*filter.FieldInfo, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Key returns the key of a known field and panics otherwise.
func (r *Registry) Key(name string) filter.FieldKey {
	f, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("unknown field %q", name))
	}
	return f.Key
}

// Field returns the field for key. Aliases are never returned.
func (r *Registry) Field(key filter.FieldKey) (*filter.FieldInfo, bool) {
	f, ok := r.byKey[key]
	return f, ok
}

// All returns every field sorted by name.
func (r *Registry) All() []*filter.FieldInfo {
	return slices.Clone(r.list)
}

// Prefix returns the fields whose name equals prefix or lies below it,
// sorted by name. "tcp" selects tcp and tcp.port but not tcpip.
func (r *Registry) Prefix(prefix string) []*filter.FieldInfo {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return r.All()
	}

	var out []*filter.FieldInfo
	for _, f := range r.list {
		if f.Name == prefix || strings.HasPrefix(f.Name, prefix+".") {
			out = append(out, f)
		}
	}
	return out
}
