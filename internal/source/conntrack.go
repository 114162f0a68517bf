/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/mdlayher/netlink"
	"github.com/ti-mo/conntrack"
	"github.com/ti-mo/netfilter"

	"github.com/tschaefer/pktfilter/internal/dissect"
)

// Conntrack turns live conntrack events into packets.
type Conntrack struct {
	con   *conntrack.Conn
	evCh  chan conntrack.Event
	errCh chan error
}

// DialConntrack connects to conntrack and subscribes to flow events of all
// network namespaces.
func DialConntrack() (*Conntrack, error) {
	con, err := conntrack.Dial(nil)
	if err != nil {
		slog.Error("Failed to dial conntrack.", "error", err)
		return nil, err
	}

	if err := con.SetOption(netlink.ListenAllNSID|netlink.NoENOBUFS, true); err != nil {
		_ = con.Close()
		slog.Error("Failed to set conntrack listen options.", "error", err)
		return nil, err
	}

	evCh := make(chan conntrack.Event, 1024)
	errCh, err := con.Listen(evCh, 4, netfilter.GroupsCT)
	if err != nil {
		_ = con.Close()
		slog.Error("Failed to listen to conntrack events.", "error", err)
		return nil, err
	}

	return &Conntrack{con: con, evCh: evCh, errCh: errCh}, nil
}

func (c *Conntrack) Run(ctx context.Context, d *dissect.Dissector, out chan<- *dissect.Packet) error {
	return run(ctx, d, out, c.evCh, c.errCh)
}

func run(ctx context.Context, d *dissect.Dissector, out chan<- *dissect.Packet, evCh <-chan conntrack.Event, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down conntrack listener.")
			return nil
		case err := <-errCh:
			if err != nil {
				slog.Error("Conntrack listener error.", "error", err)
			}
			return err
		case ev, ok := <-evCh:
			if !ok {
				return nil
			}
			if err := send(ctx, out, d.Flow(ev, time.Now())); err != nil {
				return nil
			}
		}
	}
}

func (c *Conntrack) Close() error {
	return c.con.Close()
}
