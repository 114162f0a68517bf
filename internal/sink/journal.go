/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package sink

import (
	"fmt"
	"log/slog"
	"strings"

	slogjournal "github.com/tschaefer/slog-journal"
)

const DefaultJournalPrefix = "PACKET"

// Journal writes records to the systemd journal. Record attributes become
// journal fields named Prefix_ATTR.
type Journal struct {
	Enable bool
	Prefix string
}

func (j *Journal) TargetJournal(options *slog.HandlerOptions) (slog.Handler, error) {
	prefix, err := journalPrefix(j.Prefix)
	if err != nil {
		return nil, err
	}
	slog.Debug("Initializing journal sink.", "prefix", prefix)

	slogjournal.FieldPrefix = prefix
	o := &slogjournal.Option{
		Level: options.Level,
	}
	return o.NewJournalHandler(), nil
}

// journalPrefix upper-cases prefix. Journal field names allow only A-Z,
// digits and underscores and must not start with an underscore or digit.
func journalPrefix(prefix string) (string, error) {
	if prefix == "" {
		return DefaultJournalPrefix, nil
	}

	prefix = strings.ToUpper(prefix)
	for i, r := range prefix {
		switch {
		case r >= 'A' && r <= 'Z':
		case r == '_' || (r >= '0' && r <= '9'):
			if i == 0 {
				return "", fmt.Errorf("invalid journal field prefix %q", prefix)
			}
		default:
			return "", fmt.Errorf("invalid journal field prefix %q", prefix)
		}
	}
	return prefix, nil
}
