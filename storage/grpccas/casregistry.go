package grpccas

import (
	"fmt"
	"strings"
	"time"

	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/casregistry"
)

// DefaultDialTimeout bounds the initial connection for "grpc:" locations.
const DefaultDialTimeout = 5 * time.Second

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Scheme:      "grpc",
		Description: "Remote audit archive served by xdao-ledgercore archive (grpc:<host:port>)",
		Usage:       casregistry.UsageSink,
		Open: func(target string) (storage.CAS, func() error, error) {
			target = strings.TrimPrefix(strings.TrimSpace(target), "//")
			if target == "" {
				return nil, nil, fmt.Errorf("grpc: target host:port is required")
			}
			client, err := Dial(target, DialOptions{Timeout: DefaultDialTimeout})
			if err != nil {
				return nil, nil, err
			}
			return client, client.Close, nil
		},
	})
}
