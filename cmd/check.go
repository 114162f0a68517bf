/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
)

type checkOptions struct {
	dump       bool
	noOptimize bool
}

var checkOpts = checkOptions{}

var checkCmd = &cobra.Command{
	Use:   "check <filter>",
	Short: "Compile a display filter and report problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return check(cmd.OutOrStdout(), args[0], checkOpts)
	},
}

// check compiles text against the built-in fields. Diagnostics are
// written to w with the offending span underlined.
func check(w io.Writer, text string, opts checkOptions) error {
	var compileOpts []filter.Option
	if opts.noOptimize {
		compileOpts = append(compileOpts, filter.WithoutOptimizer())
	}

	f, err := filter.Compile(text, fields.Default(), compileOpts...)
	if err != nil {
		var ferr *filter.Error
		if !errors.As(err, &ferr) {
			return err
		}
		for _, d := range ferr.Diagnostics {
			_, _ = fmt.Fprintf(w, "%s\n%s\n", d.Error(), d.Underline(text))
		}
		return fmt.Errorf("invalid filter: %d problem(s)", len(ferr.Diagnostics))
	}

	for _, d := range f.Warnings() {
		_, _ = fmt.Fprintf(w, "warning: %s\n%s\n", d.Msg, d.Underline(text))
	}

	_, _ = fmt.Fprintln(w, filter.Format(f.Tree()))
	if opts.dump {
		_, _ = fmt.Fprint(w, f.Disassemble())
	}
	return nil
}

func init() {
	checkCmd.CompletionOptions.SetDefaultShellCompDirective(cobra.ShellCompDirectiveNoFileComp)

	checkCmd.Flags().BoolVar(&checkOpts.dump, "dump", false, "Print the compiled bytecode")
	checkCmd.Flags().BoolVar(&checkOpts.noOptimize, "no-optimize", false, "Skip constant folding and simplification")
}
