/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package sink

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"

	slogsyslog "github.com/samber/slog-syslog/v2"
)

const (
	syslogPort        = "514"
	syslogDialTimeout = 5 * time.Second
)

var SyslogProtocols = []string{"udp", "tcp", "unix", "unixgram", "unixpacket"}

// Syslog sends records to a syslog daemon. Address is a URL such as
// udp://localhost:514 or unix:///dev/log.
type Syslog struct {
	Enable  bool
	Address string
}

func (s *Syslog) TargetSyslog(options *slog.HandlerOptions) (slog.Handler, error) {
	slog.Debug("Initializing syslog sink.", "address", s.Address)

	network, address, err := s.endpoint()
	if err != nil {
		return nil, err
	}

	writer, err := net.DialTimeout(network, address, syslogDialTimeout)
	if err != nil {
		return nil, err
	}

	slogsyslog.ContextKey = "packet"
	o := &slogsyslog.Option{
		Writer: writer,
		Level:  options.Level,
	}
	return o.NewSyslogHandler(), nil
}

// endpoint splits Address into network and dial address. Network
// addresses without a port get the syslog default.
func (s *Syslog) endpoint() (string, string, error) {
	uri, err := url.Parse(s.Address)
	if err != nil {
		return "", "", err
	}

	network := uri.Scheme
	if !slices.Contains(SyslogProtocols, network) {
		return "", "", fmt.Errorf("unsupported syslog protocol %q", network)
	}

	if strings.HasPrefix(network, "unix") {
		if uri.Path == "" {
			return "", "", fmt.Errorf("missing syslog socket path in %q", s.Address)
		}
		return network, uri.Path, nil
	}

	if uri.Hostname() == "" {
		return "", "", fmt.Errorf("missing syslog host in %q", s.Address)
	}
	port := uri.Port()
	if port == "" {
		port = syslogPort
	}
	return network, net.JoinHostPort(uri.Hostname(), port), nil
}
