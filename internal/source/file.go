/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tschaefer/pktfilter/internal/dissect"
)

var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// File reads a pcap or pcapng capture file.
type File struct {
	Path   string
	file   *os.File
	reader packetReader
	ng     bool
}

// OpenFile opens a capture file. The format is detected from its magic.
func OpenFile(path string) (*File, error) {
	slog.Debug("Opening capture file.", "path", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r, ng, err := newReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &File{Path: path, file: f, reader: r, ng: ng}, nil
}

func newReader(r io.Reader) (packetReader, bool, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, false, fmt.Errorf("reading capture header: %w", err)
	}

	if bytes.Equal(magic, ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, true, err
		}
		return ng, true, nil
	}

	pcap, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, false, err
	}
	return pcap, false, nil
}

// Format returns "pcapng" or "pcap".
func (f *File) Format() string {
	if f.ng {
		return "pcapng"
	}
	return "pcap"
}

func (f *File) Run(ctx context.Context, d *dissect.Dissector, out chan<- *dissect.Packet) error {
	link := f.reader.LinkType()
	slog.Debug("Reading capture file.", "path", f.Path, "format", f.Format(), "link", link.String())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, ci, err := f.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}

		if err := send(ctx, out, d.Dissect(data, ci, link)); err != nil {
			return err
		}
	}
}

func (f *File) Close() error {
	return f.file.Close()
}
