package driver

import (
	"context"
	"fmt"
)

// Registry maps DSN schemes to drivers. It is populated once at startup and
// read-only afterwards; lookup is a linear scan over a handful of entries.
type Registry struct {
	drivers []Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a driver. Registering the same scheme twice replaces the
// earlier entry.
func (r *Registry) Register(d Driver) {
	for i, existing := range r.drivers {
		if existing.Scheme() == d.Scheme() {
			r.drivers[i] = d
			return
		}
	}
	r.drivers = append(r.drivers, d)
}

// Lookup finds the driver for a scheme.
func (r *Registry) Lookup(scheme string) (Driver, error) {
	for _, d := range r.drivers {
		if d.Scheme() == scheme {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown database scheme %q", scheme)
}

// Schemes returns the registered scheme names.
func (r *Registry) Schemes() []string {
	names := make([]string, len(r.drivers))
	for i, d := range r.drivers {
		names[i] = d.Scheme()
	}
	return names
}

// Open parses connstr, selects the driver by scheme and connects. A bare
// filesystem path (no "://") is treated as a SQLite database.
func (r *Registry) Open(ctx context.Context, connstr string) (Conn, error) {
	dsn, err := ParseDSN(connstr)
	if err != nil {
		return nil, err
	}
	d, err := r.Lookup(dsn.Scheme)
	if err != nil {
		return nil, err
	}
	conn, err := d.Open(ctx, dsn.Rest)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}
