/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package dissect

import (
	"strings"
	"time"

	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
)

// Packet is a dissected frame or flow event. It implements
// filter.Dissection and is read-only once returned by a Dissector.
type Packet struct {
	Number    int
	Timestamp time.Time
	Data      []byte
	// Summary is a one-line description such as
	// "TCP 10.0.0.1:51234 -> 10.0.0.2:443".
	Summary string

	occs      map[filter.FieldKey][]filter.Occurrence
	layers    map[filter.FieldKey]int
	protocols []string
}

func (p *Packet) Occurrences(key filter.FieldKey) []filter.Occurrence {
	return p.occs[key]
}

func (p *Packet) LayerCount(key filter.FieldKey) int {
	return p.layers[key]
}

// Protocols returns the dissected protocols below the frame from the
// outermost inwards.
func (p *Packet) Protocols() []string {
	return p.protocols
}

// Value returns the value of the first occurrence of key.
func (p *Packet) Value(key filter.FieldKey) (filter.Value, bool) {
	occs := p.occs[key]
	if len(occs) == 0 {
		return nil, false
	}
	return occs[0].Value, true
}

// builder collects occurrences for one packet. Fields are attributed to
// the layer of the protocol most recently opened.
type builder struct {
	reg   *fields.Registry
	pkt   *Packet
	depth map[string]int
	layer int
}

func newBuilder(reg *fields.Registry, pkt *Packet) *builder {
	pkt.occs = make(map[filter.FieldKey][]filter.Occurrence)
	pkt.layers = make(map[filter.FieldKey]int)
	return &builder{
		reg:   reg,
		pkt:   pkt,
		depth: make(map[string]int),
		layer: 1,
	}
}

// protocol opens a protocol layer spanning length bytes from off.
func (b *builder) protocol(name string, off, length int) {
	b.depth[name]++
	b.layer = b.depth[name]
	if name != "frame" {
		b.pkt.protocols = append(b.pkt.protocols, name)
	}

	var raw []byte
	if off+length <= len(b.pkt.Data) {
		raw = b.pkt.Data[off : off+length]
	}
	b.put(name, filter.Occurrence{Offset: off, Length: length, Value: filter.Bytes(raw), Raw: raw})
}

// field adds a value decoded from whole bytes of the packet. Values
// outside the captured data are dropped.
func (b *builder) field(name string, off, length int, v filter.Value) {
	if !b.captured(off, length) {
		return
	}
	raw := b.pkt.Data[off : off+length]
	b.put(name, filter.Occurrence{Offset: off, Length: length, Value: v, Raw: raw})
}

// bits adds a value that occupies only part of the given bytes.
func (b *builder) bits(name string, off, length int, v filter.Value) {
	if !b.captured(off, length) {
		return
	}
	b.put(name, filter.Occurrence{Offset: off, Length: length, Value: v})
}

func (b *builder) captured(off, length int) bool {
	return off >= 0 && length >= 0 && off+length <= len(b.pkt.Data)
}

// meta adds a value that is not backed by packet data.
func (b *builder) meta(name string, v filter.Value) {
	b.put(name, filter.Occurrence{Value: v})
}

func (b *builder) put(name string, o filter.Occurrence) {
	key := b.reg.Key(name)
	o.Layer = b.layer
	b.pkt.occs[key] = append(b.pkt.occs[key], o)
	b.pkt.layers[key] = max(b.pkt.layers[key], o.Layer)
}

func (b *builder) finish() *Packet {
	if len(b.pkt.protocols) > 0 {
		b.layer = 1
		b.meta("frame.protocols", filter.String(strings.Join(b.pkt.protocols, ":")))
	}
	return b.pkt
}
