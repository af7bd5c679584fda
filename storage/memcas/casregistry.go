package memcas

import (
	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Scheme:      "mem",
		Description: "Process-local archive, discarded on exit (mem:)",
		Usage:       casregistry.UsageSink | casregistry.UsageArchive,
		Open: func(string) (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}
