/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tschaefer/pktfilter/internal/fields"
	"github.com/tschaefer/pktfilter/internal/filter"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields [prefix]",
	Short: "List the fields usable in display filters",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		return listFields(cmd.OutOrStdout(), fields.Default(), prefix)
	},
}

func listFields(w io.Writer, reg *fields.Registry, prefix string) error {
	list := reg.Prefix(prefix)
	if len(list) == 0 {
		return fmt.Errorf("no fields below %q", prefix)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tDESCRIPTION")
	for _, f := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, typeName(f), description(f))
	}
	return tw.Flush()
}

func typeName(f *filter.FieldInfo) string {
	if f.Type == filter.TypeUint || f.Type == filter.TypeInt {
		return fmt.Sprintf("%s (%d bits)", f.Type, f.Width())
	}
	return f.Type.String()
}

func description(f *filter.FieldInfo) string {
	if f.Deprecated != "" {
		return fmt.Sprintf("%s (deprecated, use %s)", f.Description, f.Deprecated)
	}
	return f.Description
}

func init() {
	fieldsCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, f := range fields.Default().All() {
			if strings.HasPrefix(f.Name, toComplete) {
				names = append(names, f.Name)
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}
