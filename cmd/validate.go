/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/tschaefer/pktfilter/internal/logger"
	"github.com/tschaefer/pktfilter/internal/sink"
)

var (
	validLogLevels     = logger.Levels
	validLogFormats    = logger.Formats
	validStreamWriters = sink.StreamWriters
	validSyslogSchemes = sink.SyslogProtocols
	validLokiSchemes   = sink.LokiProtocols
)

// validateStringFlag checks value against valid. Address flags are
// checked for a usable URL instead.
func validateStringFlag(name, value string, valid []string) error {
	switch name {
	case "sink.syslog.address":
		return validateURL(name, value, validSyslogSchemes)
	case "sink.loki.address":
		return validateURL(name, value, validLokiSchemes)
	case "sink.stream.writer":
		if path, ok := strings.CutPrefix(value, "file://"); ok && path != "" {
			return nil
		}
	}

	if len(valid) > 0 && !slices.Contains(valid, value) {
		return fmt.Errorf("invalid value %q for %s, allowed: %s", value, name, strings.Join(valid, ", "))
	}
	return nil
}

func validateURL(name, value string, schemes []string) error {
	uri, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, name, err)
	}
	if !slices.Contains(schemes, uri.Scheme) {
		return fmt.Errorf("invalid scheme %q for %s, allowed: %s", uri.Scheme, name, strings.Join(schemes, ", "))
	}
	if strings.HasPrefix(uri.Scheme, "unix") {
		if uri.Path == "" {
			return fmt.Errorf("missing socket path for %s", name)
		}
		return nil
	}
	if uri.Host == "" {
		return fmt.Errorf("missing host for %s", name)
	}
	return nil
}

func validateLabels(labels []string) error {
	for _, label := range labels {
		k, v, ok := strings.Cut(label, "=")
		if !ok || k == "" || v == "" {
			return fmt.Errorf("invalid label %q for sink.loki.labels, expected key=value", label)
		}
	}
	return nil
}
