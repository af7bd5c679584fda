// Package casregistry opens audit archives from location strings such as
// "mem:", "file:/var/lib/ledgercore/audit" or "grpc:archive.internal:7443".
//
// Backends register themselves in init(); a binary enables a backend by
// importing its package, usually as a blank import.
package casregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/ledgercore/storage"
)

// Backend opens one storage.CAS implementation.
type Backend struct {
	Scheme      string
	Description string
	Usage       Usage

	// Open receives the location with "<scheme>:" stripped. It returns an
	// optional close function.
	Open func(rest string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Scheme == "" || strings.ContainsAny(b.Scheme, ": ") {
		return fmt.Errorf("casregistry: invalid scheme %q", b.Scheme)
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Scheme)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Scheme)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Scheme]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Scheme)
	}
	backends[b.Scheme] = b
	return nil
}

func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by scheme.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}

func Schemes(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Scheme)
	}
	return n
}

// Split separates "scheme:rest". A location without a colon is rejected so
// that a bare path never silently picks a backend.
func Split(location string) (scheme, rest string, err error) {
	location = strings.TrimSpace(location)
	scheme, rest, ok := strings.Cut(location, ":")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("casregistry: location %q has no scheme", location)
	}
	return scheme, rest, nil
}

// Open opens the backend named by location's scheme if it matches usage.
func Open(location string, usage Usage) (storage.CAS, func() error, error) {
	scheme, rest, err := Split(location)
	if err != nil {
		return nil, nil, err
	}
	mu.RLock()
	b, ok := backends[scheme]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("casregistry: unknown backend %q (known: %s)", scheme, strings.Join(Schemes(UsageSink|UsageArchive), ", "))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("casregistry: backend %q not supported here", scheme)
	}
	cas, closeFn, err := b.Open(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("casregistry: open %s: %w", scheme, err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return cas, closeFn, nil
}
