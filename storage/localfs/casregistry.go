package localfs

import (
	"fmt"

	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Scheme:      "file",
		Description: "Audit archive in a local directory (file:<dir>)",
		Usage:       casregistry.UsageSink | casregistry.UsageArchive,
		Open: func(dir string) (storage.CAS, func() error, error) {
			if dir == "" {
				return nil, nil, fmt.Errorf("file: directory is required")
			}
			cas, err := New(dir)
			if err != nil {
				return nil, nil, err
			}
			return cas, nil, nil
		},
	})
}
