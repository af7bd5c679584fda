package casregistry

// Usage restricts where a backend may be opened.
type Usage uint8

const (
	// UsageSink backends can receive audit entries from an engine process.
	UsageSink Usage = 1 << iota
	// UsageArchive backends can be served by the archive daemon. Remote
	// backends are sink-only so a daemon never proxies to another daemon.
	UsageArchive
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
