/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package record

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tschaefer/pktfilter/internal/dissect"
	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
)

// Match is a packet that satisfied the display filter.
type Match struct {
	Packet    *dissect.Packet
	Locations []filter.Location
}

// Recorder writes matches as structured log records.
type Recorder struct {
	Registry *fields.Registry
	Source   string
	Filter   string
	Logger   *slog.Logger
}

func (r *Recorder) Record(m Match) {
	pkt := m.Packet
	slog.Debug("Matched packet.", "number", pkt.Number, "locations", len(m.Locations))

	attrs := []any{
		slog.String("source", r.Source),
		slog.String("filter", r.Filter),
		slog.Int("number", pkt.Number),
		slog.Time("timestamp", pkt.Timestamp),
		slog.String("protocols", strings.Join(pkt.Protocols(), ":")),
	}
	if v, ok := r.value(pkt, "frame.len"); ok && len(pkt.Data) > 0 {
		attrs = append(attrs, slog.String("len", v))
	}
	if prot := r.transport(pkt); prot != "" {
		attrs = append(attrs, slog.String("prot", prot))
	}
	attrs = append(attrs, r.endpoints(pkt)...)
	attrs = append(attrs, r.conntrack(pkt)...)
	attrs = append(attrs, r.location(pkt)...)

	if len(m.Locations) > 0 {
		attrs = append(attrs, slog.Any("matched", r.regions(m.Locations)))
	}

	r.Logger.Info(pkt.Summary, attrs...)
}

func (r *Recorder) value(pkt *dissect.Packet, name string) (string, bool) {
	f, ok := r.Registry.Lookup(name)
	if !ok {
		return "", false
	}
	v, ok := pkt.Value(f.Key)
	if !ok {
		return "", false
	}
	return v.String(), true
}

func (r *Recorder) transport(pkt *dissect.Packet) string {
	for _, name := range []string{"tcp", "udp", "icmp", "icmpv6"} {
		if _, ok := r.value(pkt, name); ok {
			return strings.ToUpper(name)
		}
	}
	return ""
}

func (r *Recorder) endpoints(pkt *dissect.Packet) []any {
	var attrs []any
	pairs := []struct {
		attr  string
		names []string
	}{
		{"src_addr", []string{"ip.src", "ipv6.src"}},
		{"dst_addr", []string{"ip.dst", "ipv6.dst"}},
		{"src_port", []string{"tcp.srcport", "udp.srcport"}},
		{"dst_port", []string{"tcp.dstport", "udp.dstport"}},
	}
	for _, p := range pairs {
		for _, name := range p.names {
			if v, ok := r.value(pkt, name); ok {
				attrs = append(attrs, slog.String(p.attr, v))
				break
			}
		}
	}
	return attrs
}

func (r *Recorder) conntrack(pkt *dissect.Packet) []any {
	var attrs []any
	for attr, name := range map[string]string{
		"ct_type":  "ct.type",
		"ct_state": "ct.state",
		"ct_id":    "ct.id",
	} {
		if v, ok := r.value(pkt, name); ok {
			attrs = append(attrs, slog.String(attr, v))
		}
	}
	return attrs
}

func (r *Recorder) location(pkt *dissect.Packet) []any {
	var attrs []any
	for _, dir := range []string{"src", "dst"} {
		for _, kind := range []string{"country", "city"} {
			if v, ok := r.value(pkt, "ip.geoip."+dir+"_"+kind); ok {
				attrs = append(attrs, slog.String(dir+"_"+kind, v))
			}
		}
	}
	return attrs
}

// regions renders locations as "name#layer@offset+length". Regions of
// values that do not come from packet data have no offset part.
func (r *Recorder) regions(locs []filter.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		name := fmt.Sprintf("field %d", l.Field)
		if f, ok := r.Registry.Field(l.Field); ok {
			name = f.Name
		}
		if l.Length == 0 {
			out = append(out, fmt.Sprintf("%s#%d", name, l.Layer))
			continue
		}
		out = append(out, fmt.Sprintf("%s#%d@%d+%d", name, l.Layer, l.Offset, l.Length))
	}
	return out
}
