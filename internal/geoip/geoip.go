/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package geoip

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/oschwald/geoip2-golang/v2"
)

// Reader resolves addresses with a MaxMind city database. It is safe for
// concurrent use.
type Reader struct {
	Path   string
	reader *geoip2.Reader
}

type Location struct {
	Country string
	City    string
	Lat     float64
	Lon     float64
}

func Open(path string) (*Reader, error) {
	slog.Debug("Opening GeoIP2 database.", "path", path)

	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	return &Reader{Path: path, reader: reader}, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// routable reports whether ip can have a location at all.
func routable(ip netip.Addr) bool {
	return ip.IsValid() &&
		!ip.IsPrivate() &&
		!ip.IsLoopback() &&
		!ip.IsMulticast() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsUnspecified()
}

// Location returns the location of ip or nil if the database does not
// know it.
func (r *Reader) Location(ip netip.Addr) *Location {
	ip = ip.Unmap()
	if !routable(ip) {
		return nil
	}

	record, err := r.reader.City(ip)
	if err != nil || !record.HasData() {
		return nil
	}

	var loc Location
	if record.Country.HasData() {
		loc.Country = record.Country.Names.English
	}
	if record.City.HasData() {
		loc.City = record.City.Names.English
	}
	if record.Location.HasCoordinates() {
		loc.Lat = *record.Location.Latitude
		loc.Lon = *record.Location.Longitude
	}

	if loc == (Location{}) {
		return nil
	}
	return &loc
}
