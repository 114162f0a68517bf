/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package service

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tschaefer/pktfilter/internal/dissect"
	"github.com/tschaefer/pktfilter/internal/filter"
	"github.com/tschaefer/pktfilter/internal/logger"
	"github.com/tschaefer/pktfilter/internal/record"
	"github.com/tschaefer/pktfilter/internal/source"
	"github.com/tschaefer/pktfilter/internal/version"
)

type Service struct {
	Filter    *filter.Filter
	Source    source.Source
	Dissector *dissect.Dissector
	Recorder  *record.Recorder
	Workers   int
	Logger    *slog.Logger

	stats Stats
}

// Stats counts the packets seen by the last Run.
type Stats struct {
	Packets int
	Matched int
}

type job struct {
	pkt  *dissect.Packet
	done chan verdict
}

type verdict struct {
	ok   bool
	locs []filter.Location
}

// NewService wires a packet source to the recorder. A nil filter passes
// every packet. Workers below one default to the number of CPUs.
func NewService(logger *logger.Logger, f *filter.Filter, src source.Source, d *dissect.Dissector, rec *record.Recorder, workers int) (*Service, error) {
	if src == nil {
		return nil, errors.New("no packet source")
	}
	if d == nil {
		return nil, errors.New("no dissector")
	}
	if rec == nil {
		return nil, errors.New("no recorder")
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	slog.SetDefault(logger.Logger)

	return &Service{
		Filter:    f,
		Source:    src,
		Dissector: d,
		Recorder:  rec,
		Workers:   workers,
		Logger:    logger.Logger,
	}, nil
}

// Run reads the source to its end or until ctx is done. It reports false
// if the pipeline failed.
func (s *Service) Run(ctx context.Context) bool {
	slog.Info("Starting packet filter.",
		"release", version.Release(), "commit", version.Commit(),
		"source", s.Recorder.Source, "workers", s.Workers,
	)
	if s.Filter != nil {
		slog.Debug("Using display filter.", "filter", s.Filter.String())
	}

	s.stats = Stats{}
	start := time.Now()

	g := s.startPipeline(ctx)

	return s.handleShutdown(g, start)
}

// Stats returns the counters of the last Run.
func (s *Service) Stats() Stats {
	return s.stats
}

func (s *Service) startPipeline(ctx context.Context) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)

	pkts := make(chan *dissect.Packet, s.Workers)
	jobs := make(chan job)
	order := make(chan job, 2*s.Workers)

	g.Go(func() error {
		defer close(pkts)
		return s.Source.Run(ctx, s.Dissector, pkts)
	})

	g.Go(func() error {
		defer close(order)
		defer close(jobs)
		return s.dispatch(ctx, pkts, jobs, order)
	})

	for range s.Workers {
		g.Go(func() error {
			s.evaluate(jobs)
			return nil
		})
	}

	g.Go(func() error {
		return s.collect(ctx, order)
	})

	return g
}

// dispatch hands each packet to a worker and queues its result slot in
// packet order.
func (s *Service) dispatch(ctx context.Context, pkts <-chan *dissect.Packet, jobs, order chan<- job) error {
	for pkt := range pkts {
		j := job{pkt: pkt, done: make(chan verdict, 1)}
		select {
		case <-ctx.Done():
			return nil
		case jobs <- j:
		}
		select {
		case <-ctx.Done():
			return nil
		case order <- j:
		}
	}
	return nil
}

func (s *Service) evaluate(jobs <-chan job) {
	for j := range jobs {
		if s.Filter == nil {
			j.done <- verdict{ok: true}
			continue
		}
		ok, locs := s.Filter.MatchLocations(j.pkt)
		j.done <- verdict{ok: ok, locs: locs}
	}
}

func (s *Service) collect(ctx context.Context, order <-chan job) error {
	for j := range order {
		var v verdict
		select {
		case <-ctx.Done():
			return nil
		case v = <-j.done:
		}

		s.stats.Packets++
		if !v.ok {
			continue
		}
		s.stats.Matched++
		s.Recorder.Record(record.Match{Packet: j.pkt, Locations: v.locs})
	}
	return nil
}

func (s *Service) handleShutdown(g *errgroup.Group, start time.Time) bool {
	err := g.Wait()

	attrs := []any{
		"packets", s.stats.Packets,
		"matched", s.stats.Matched,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Packet pipeline failed.", append(attrs, "error", err)...)
		return false
	}

	slog.Info("Shutting down packet filter.", attrs...)
	return true
}
