/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tschaefer/pktfilter/internal/dissect"
	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
	"github.com/tschaefer/pktfilter/internal/geoip"
	"github.com/tschaefer/pktfilter/internal/logger"
	"github.com/tschaefer/pktfilter/internal/profiler"
	"github.com/tschaefer/pktfilter/internal/record"
	"github.com/tschaefer/pktfilter/internal/service"
	"github.com/tschaefer/pktfilter/internal/sink"
	"github.com/tschaefer/pktfilter/internal/source"
)

type Options struct {
	logLevel        string
	logFormat       string
	geoipDatabase   string
	profilerAddress string
	filter          string
	read            string
	conntrack       bool
	workers         int
	sink            sink.Config
}

// loadOptions reads the run options from flags, config file and
// environment.
func loadOptions() (*Options, error) {
	o := &Options{
		logLevel:        viper.GetString("log.level"),
		logFormat:       viper.GetString("log.format"),
		geoipDatabase:   viper.GetString("geoip.database"),
		profilerAddress: viper.GetString("profiler.address"),
		filter:          viper.GetString("filter"),
		read:            viper.GetString("read"),
		conntrack:       viper.GetBool("conntrack"),
		workers:         viper.GetInt("workers"),
	}
	o.sink.Journal.Enable = viper.GetBool("sink.journal.enable")
	o.sink.Journal.Prefix = viper.GetString("sink.journal.prefix")
	o.sink.Syslog.Enable = viper.GetBool("sink.syslog.enable")
	o.sink.Syslog.Address = viper.GetString("sink.syslog.address")
	o.sink.Loki.Enable = viper.GetBool("sink.loki.enable")
	o.sink.Loki.Address = viper.GetString("sink.loki.address")
	o.sink.Loki.Labels = viper.GetStringSlice("sink.loki.labels")
	o.sink.Stream.Enable = viper.GetBool("sink.stream.enable")
	o.sink.Stream.Writer = viper.GetString("sink.stream.writer")

	return o, o.validate()
}

func (o *Options) validate() error {
	if o.read == "" && !o.conntrack {
		return errors.New("either --read or --conntrack is required")
	}
	if o.read != "" && o.conntrack {
		return errors.New("--read and --conntrack are mutually exclusive")
	}
	if o.workers < 0 {
		return fmt.Errorf("invalid value %d for workers", o.workers)
	}

	checks := []struct {
		name  string
		value string
		valid []string
		on    bool
	}{
		{"log.level", o.logLevel, validLogLevels, true},
		{"log.format", o.logFormat, validLogFormats, true},
		{"sink.syslog.address", o.sink.Syslog.Address, nil, o.sink.Syslog.Enable},
		{"sink.loki.address", o.sink.Loki.Address, nil, o.sink.Loki.Enable},
		{"sink.stream.writer", o.sink.Stream.Writer, validStreamWriters, o.sink.Stream.Enable},
	}
	for _, c := range checks {
		if !c.on {
			continue
		}
		if err := validateStringFlag(c.name, c.value, c.valid); err != nil {
			return err
		}
	}

	if o.sink.Loki.Enable {
		return validateLabels(o.sink.Loki.Labels)
	}
	return nil
}

func (o *Options) sourceName() string {
	if o.conntrack {
		return "conntrack"
	}
	return "file"
}

func (o *Options) openSource() (source.Source, error) {
	if o.conntrack {
		return source.DialConntrack()
	}
	return source.OpenFile(o.read)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Filter a capture file or live conntrack flows",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		options, err := loadOptions()
		cobra.CheckErr(err)

		l, err := logger.NewLogger(options.logLevel, options.logFormat)
		if err != nil {
			cobra.CheckErr(fmt.Sprintf("Failed to create logger: %v", err))
		}

		reg := fields.Default()

		var f *filter.Filter
		if options.filter != "" {
			f, err = filter.Compile(options.filter, reg)
			if err != nil {
				cobra.CheckErr(fmt.Sprintf("Failed to compile filter: %v", err))
			}
			for _, w := range f.Warnings() {
				l.Logger.Warn("Deprecated filter syntax.", "position", w.Pos, "warning", w.Msg)
			}
		}

		var locator dissect.Locator
		if options.geoipDatabase != "" {
			g, err := geoip.Open(options.geoipDatabase)
			if err != nil {
				cobra.CheckErr(fmt.Sprintf("Failed to open geoip database: %v", err))
			}
			defer func() {
				_ = g.Close()
			}()
			locator = g
		}

		src, err := options.openSource()
		if err != nil {
			cobra.CheckErr(fmt.Sprintf("Failed to open packet source: %v", err))
		}
		defer func() {
			_ = src.Close()
		}()

		s, err := sink.NewSink(&options.sink)
		if err != nil {
			cobra.CheckErr(fmt.Sprintf("Failed to initialize sink: %v", err))
		}
		defer func() {
			_ = s.Close()
		}()

		if options.profilerAddress != "" {
			p := profiler.NewProfiler(options.profilerAddress, map[string]string{"source": options.sourceName()})
			if err := p.Start(); err != nil {
				slog.Warn("Failed to start profiler.", "error", err)
			} else {
				defer func() {
					_ = p.Stop()
				}()
			}
		}

		rec := &record.Recorder{
			Registry: reg,
			Source:   options.sourceName(),
			Filter:   options.filter,
			Logger:   s.Logger,
		}

		service, err := service.NewService(l, f, src, dissect.New(reg, locator), rec, options.workers)
		cobra.CheckErr(err)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if tranquil := service.Run(ctx); !tranquil {
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.CompletionOptions.SetDefaultShellCompDirective(cobra.ShellCompDirectiveNoFileComp)

	runCmd.Flags().String("filter", "", "Display filter, packets not matching are dropped")
	runCmd.Flags().String("read", "", "Read packets from a pcap or pcapng file")
	_ = runCmd.RegisterFlagCompletionFunc("read", cobra.FixedCompletions(nil, cobra.ShellCompDirectiveDefault))
	runCmd.Flags().Bool("conntrack", false, "Read live conntrack flow events")
	runCmd.Flags().Int("workers", 0, "Number of filter workers (default number of CPUs)")

	runCmd.Flags().String("log.level", "info", fmt.Sprintf("Log level (%s)", strings.Join(logger.Levels, ", ")))
	_ = runCmd.RegisterFlagCompletionFunc("log.level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return logger.Levels, cobra.ShellCompDirectiveNoFileComp
	})
	runCmd.Flags().String("log.format", "json", fmt.Sprintf("Log format (%s)", strings.Join(logger.Formats, ", ")))
	_ = runCmd.RegisterFlagCompletionFunc("log.format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return logger.Formats, cobra.ShellCompDirectiveNoFileComp
	})

	runCmd.Flags().String("geoip.database", "", "Path to GeoIP database")
	_ = runCmd.RegisterFlagCompletionFunc("geoip.database", cobra.FixedCompletions(nil, cobra.ShellCompDirectiveDefault))

	runCmd.Flags().String("profiler.address", "", "Pyroscope server address, profiling is off if empty")

	runCmd.Flags().Bool("sink.journal.enable", false, "Enable journald sink")
	runCmd.Flags().String("sink.journal.prefix", sink.DefaultJournalPrefix, "Prefix of journal fields")
	runCmd.Flags().Bool("sink.syslog.enable", false, "Enable syslog sink")
	runCmd.Flags().String("sink.syslog.address", "udp://localhost:514", "Syslog address")

	runCmd.Flags().Bool("sink.loki.enable", false, "Enable Loki sink")
	runCmd.Flags().String("sink.loki.address", "http://localhost:3100", "Loki address")
	runCmd.Flags().StringSlice("sink.loki.labels", nil, "Additional labels for Loki sink in key=value format")

	runCmd.Flags().Bool("sink.stream.enable", false, "Enable stream sink")
	runCmd.Flags().String("sink.stream.writer", "stdout", fmt.Sprintf("Stream writer (%s, file://path)", strings.Join(sink.StreamWriters, ", ")))
	_ = runCmd.RegisterFlagCompletionFunc("sink.stream.writer", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return sink.StreamWriters, cobra.ShellCompDirectiveNoFileComp
	})

	_ = viper.BindPFlags(runCmd.Flags())
}
