package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/casregistry"

	_ "xdao.co/ledgercore/storage/grpccas"
	_ "xdao.co/ledgercore/storage/localfs"
	_ "xdao.co/ledgercore/storage/memcas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "entries":
		return cmdEntries(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cascli: raw access to audit archives for walkthroughs and debugging")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cascli put --backend file:<dir> <file>")
	fmt.Fprintln(w, "  cascli get --backend file:<dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  cascli entries --backend file:<dir> --manifest <cid>")
	fmt.Fprintln(w, "  cascli get --backend grpc:<host:port> --cid <cid>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - grpc backend talks to 'xdao-ledgercore archive'")
	fmt.Fprintln(w, "  - entries lists a manifest without re-verifying the chain; use 'xdao-ledgercore verify' for that")
	fmt.Fprintln(w, "  - objects are raw blocks (CIDv1 raw + sha2-256)")
}

type commonFlags struct {
	backend      string
	listBackends bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "", "Archive location (scheme:rest)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
}

func (c *commonFlags) openCAS() (storage.CAS, func() error, error) {
	if c.backend == "" {
		return nil, nil, fmt.Errorf("missing --backend")
	}
	return casregistry.Open(c.backend, casregistry.UsageSink)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageSink) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Scheme)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Scheme, b.Description)
	}
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: cascli put [common flags] <file>")
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer closeFn()

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := cas.Put(b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var cidStr string
	var outPath string
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli get [common flags] --cid <cid> [--out <file>]")
		return 2
	}

	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer closeFn()

	b, err := cas.Get(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

// cmdEntries prints one line per manifest entry: its CID and, when the block
// is present and decodes, its index and operation.
func cmdEntries(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("entries", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var manifestStr string
	fs.StringVar(&manifestStr, "manifest", "", "Manifest CID")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if manifestStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: cascli entries [common flags] --manifest <cid>")
		return 2
	}
	id, err := cidutil.Parse(manifestStr)
	if err != nil {
		fmt.Fprintln(errOut, storage.ErrInvalidCID)
		return 2
	}

	cas, closeFn, err := common.openCAS()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer closeFn()

	m, err := audit.LoadManifest(cas, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "chain_hash %s\n", m.ChainHash)
	for i, entryID := range m.Entries {
		e, err := audit.LoadEntry(cas, entryID)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%d\t%s\t<%v>\n", i, entryID, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", e.Index, entryID, e.Operation, e.EntryHash)
	}
	return 0
}
