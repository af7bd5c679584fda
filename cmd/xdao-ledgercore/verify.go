package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ipfs/go-cid"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/incident"
	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/bundle"
	"xdao.co/ledgercore/storage/grpccas"
)

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var archiveLoc string
	fs.StringVar(&archiveLoc, "archive", "", "Archive holding the manifest and its entries")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore verify --archive <loc> <manifest-cid>")
		return 2
	}
	manifest, err := cidutil.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid manifest cid: %v\n", err)
		return 2
	}

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	cas, closeCAS, err := a.archive(archiveLoc)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	defer closeCAS()
	if cas == nil {
		fmt.Fprintln(errOut, "missing --archive")
		return 2
	}

	chain, err := audit.Replay(cas, manifest, audit.WithLogger(a.log))
	if err == nil {
		err = attest(cas, manifest, chain.ChainHash())
	}
	if err != nil {
		return a.tamper(cas, err, manifest)
	}

	report := audit.Inspect(chain.Entries())
	fmt.Fprintf(out, "OK %d entries\n", report.Verified)
	fmt.Fprintf(out, "chain_hash %s\n", chain.ChainHash())
	return 0
}

// attest cross-checks a remote archive's own replay against ours.
func attest(cas storage.CAS, manifest cid.Cid, want string) error {
	remote, ok := cas.(*grpccas.Client)
	if !ok {
		return nil
	}
	got, err := remote.Attest(context.Background(), manifest)
	if err != nil {
		return err
	}
	if got != want {
		return faults.New(faults.KindChainIntegrity, "AUDIT-ATTEST-001", "archive attested a different chain hash")
	}
	return nil
}

// tamper records a verification failure on a fresh incident chain kept in
// the same archive and returns the incident exit code. Other failures, such
// as an unreachable archive, are reported without an incident.
func (a *app) tamper(cas storage.CAS, err error, manifest cid.Cid) int {
	if !tampered(err) {
		fmt.Fprintf(a.errOut, "verify: %v\n", err)
		return 1
	}
	evidence := map[string]any{"rule": faults.RuleID(err)}
	if manifest.Defined() {
		evidence["manifest"] = manifest.String()
	}
	if idx, ok := audit.BrokenAt(err); ok {
		evidence["broken_at"] = idx
	}
	code := 0
	clock := audit.FixedClock(0)
	log := a.chain(cas)
	rec := a.incidents(log, clock, &code).Trigger(incident.ClassTamper, err.Error(), evidence)
	a.report(rec, log, cas)
	return code
}

func tampered(err error) bool {
	return faults.IsKind(err, faults.KindChainIntegrity) || storage.IsTampered(err)
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore bundle <export|import> ...")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var archiveLoc, manifestStr, outPath string
	fs.StringVar(&archiveLoc, "archive", "", "Archive holding the chain")
	fs.StringVar(&manifestStr, "manifest", "", "Manifest CID")
	fs.StringVar(&outPath, "out", "", "Bundle file to write")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if archiveLoc == "" || manifestStr == "" || outPath == "" {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore bundle export --archive <loc> --manifest <cid> --out <file>")
		return 2
	}
	manifest, err := cidutil.Parse(manifestStr)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --manifest: %v\n", err)
		return 2
	}

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	cas, closeCAS, err := a.archive(archiveLoc)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	defer closeCAS()

	var buf bytes.Buffer
	if err := bundle.ExportChain(&buf, cas, manifest); err != nil {
		if tampered(err) {
			return a.tamper(cas, err, manifest)
		}
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(errOut, "write bundle: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "wrote %s (%d bytes)\n", outPath, buf.Len())
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var archiveLoc string
	fs.StringVar(&archiveLoc, "archive", "mem:", "Archive to import into")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore bundle import [--archive <loc>] <file>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	cas, closeCAS, err := a.archive(archiveLoc)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	defer closeCAS()

	chain, manifest, err := bundle.ImportChain(f, cas, audit.WithLogger(a.log))
	if err != nil {
		if tampered(err) {
			return a.tamper(cas, err, manifest)
		}
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "manifest %s\n", manifest)
	fmt.Fprintf(out, "OK %d entries\n", chain.Len())
	fmt.Fprintf(out, "chain_hash %s\n", chain.ChainHash())
	return 0
}
