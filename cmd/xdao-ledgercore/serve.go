package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/shardrpc"
	"xdao.co/ledgercore/storage/casregistry"
	"xdao.co/ledgercore/storage/grpccas"
)

func cmdServeShard(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("serve-shard", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var listen, shard, value string
	fs.StringVar(&listen, "listen", "127.0.0.1:7780", "listen address")
	fs.StringVar(&shard, "shard", "", "Shard id reported in every sample")
	fs.StringVar(&value, "value", "", "Decimal value reported in every sample")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if shard == "" || value == "" {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore serve-shard --listen <addr> --shard <id> --value <decimal>")
		return 2
	}
	v, err := fixedpoint.FromDecimalString(value)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --value: %v\n", err)
		return 2
	}

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	s := grpc.NewServer()
	shardrpc.RegisterSamplesServer(s, &shardrpc.Server{
		Source: &shardrpc.StaticSource{ShardID: shard, Value: v},
		Log:    a.log,
	})
	return a.serve(s, listen, zap.String("shard", shard))
}

func cmdArchive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var listen, backend string
	var listBackends bool
	fs.StringVar(&listen, "listen", "127.0.0.1:7777", "listen address")
	fs.StringVar(&backend, "backend", "", "Archive backend location (e.g. file:/var/lib/ledgercore)")
	fs.BoolVar(&listBackends, "list-backends", false, "List supported backends and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if listBackends {
		for _, b := range casregistry.List(casregistry.UsageArchive) {
			if b.Description == "" {
				fmt.Fprintln(out, b.Scheme)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", b.Scheme, b.Description)
		}
		return 0
	}
	if backend == "" {
		fmt.Fprintln(errOut, "missing --backend")
		return 2
	}

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	cas, closeCAS, err := casregistry.Open(backend, casregistry.UsageArchive)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	defer closeCAS()

	s := grpc.NewServer()
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas, Log: a.log})
	return a.serve(s, listen, zap.String("backend", backend))
}

// serve runs s on addr until SIGINT or SIGTERM, then stops gracefully.
func (a *app) serve(s *grpc.Server, addr string, fields ...zap.Field) int {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.serveMetrics(ctx)

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	a.log.Info("listening", append([]zap.Field{zap.String("addr", lis.Addr().String())}, fields...)...)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(a.errOut, err)
		return 1
	}
	return 0
}
