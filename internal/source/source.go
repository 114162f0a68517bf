/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package source

import (
	"context"

	"github.com/tschaefer/pktfilter/internal/dissect"
)

// Source produces dissected packets.
type Source interface {
	// Run dissects packets with d and sends them to out in arrival order
	// until the source is exhausted or ctx is done. Run does not close out.
	Run(ctx context.Context, d *dissect.Dissector, out chan<- *dissect.Packet) error
	Close() error
}

func send(ctx context.Context, out chan<- *dissect.Packet, pkt *dissect.Packet) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- pkt:
		return nil
	}
}
