/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package record

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"maps"
	"net/netip"
	"slices"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ti-mo/conntrack"

	"github.com/tschaefer/pktfilter/internal/dissect"
	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
)

func setupLogger(log *bytes.Buffer) *slog.Logger {
	loggerOptions := &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				a.Key = "summary"
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(log, loggerOptions))
}

func setupPacket() *dissect.Packet {
	flow := conntrack.NewFlow(
		syscall.IPPROTO_TCP,
		conntrack.StatusAssured,
		netip.MustParseAddr("10.19.80.100"), netip.MustParseAddr("10.47.60.169"),
		4711, 443,
		60, 0,
	)
	event := conntrack.Event{Type: conntrack.EventNew, Flow: &flow}

	d := dissect.New(fields.Default(), nil)
	return d.Flow(event, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
}

func Test_Record(t *testing.T) {
	var log bytes.Buffer
	reg := fields.Default()

	f, err := filter.Compile("tcp.port == 443", reg)
	require.NoError(t, err)

	pkt := setupPacket()
	ok, locs := f.MatchLocations(pkt)
	require.True(t, ok)

	r := &Recorder{Registry: reg, Source: "conntrack", Filter: f.String(), Logger: setupLogger(&log)}
	r.Record(Match{Packet: pkt, Locations: locs})

	var result map[string]any
	require.NoError(t, json.Unmarshal(log.Bytes(), &result))

	wanted := []string{"level", "time", "summary",
		"source", "filter", "number", "timestamp", "protocols", "prot",
		"src_addr", "dst_addr", "src_port", "dst_port", "ct_type", "ct_id", "matched"}
	got := slices.Sorted(maps.Keys(result))
	assert.ElementsMatch(t, wanted, got, "record keys")

	assert.Equal(t, "NEW TCP 10.19.80.100:4711 -> 10.47.60.169:443", result["summary"])
	assert.Equal(t, "TCP", result["prot"])
	assert.Equal(t, "10.19.80.100", result["src_addr"])
	assert.Equal(t, "443", result["dst_port"])
	assert.Equal(t, "ct:ip:tcp", result["protocols"])
	assert.Equal(t, []any{"tcp.port#1"}, result["matched"])
}

func Test_RecordWithoutLocations(t *testing.T) {
	var log bytes.Buffer

	r := &Recorder{Registry: fields.Default(), Source: "file", Logger: setupLogger(&log)}
	r.Record(Match{Packet: setupPacket()})

	var result map[string]any
	require.NoError(t, json.Unmarshal(log.Bytes(), &result))
	assert.NotContains(t, result, "matched")
	assert.NotContains(t, result, "len")
}

func Test_Regions(t *testing.T) {
	reg := fields.Default()
	r := &Recorder{Registry: reg}

	got := r.regions([]filter.Location{
		{Field: reg.Key("ip.src"), Layer: 1, Offset: 26, Length: 4},
		{Field: reg.Key("tcp.dstport"), Layer: 2, Offset: 56, Length: 2},
		{Field: reg.Key("ct.type"), Layer: 1},
		{Field: filter.FieldKey(1 << 20), Layer: 1, Offset: 1, Length: 1},
	})
	assert.Equal(t, []string{
		"ip.src#1@26+4",
		"tcp.dstport#2@56+2",
		"ct.type#1",
		"field 1048576#1@1+1",
	}, got)
}
