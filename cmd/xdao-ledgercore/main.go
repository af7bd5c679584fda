package main

import (
	"fmt"
	"io"
	"os"
	"strings"
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
	case "calc":
		return cmdCalc(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "round":
		return cmdRound(args[1:], out, errOut)
	case "serve-shard":
		return cmdServeShard(args[1:], out, errOut)
	case "archive":
		return cmdArchive(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
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
	fmt.Fprintln(w, "xdao-ledgercore: certified fixed-point arithmetic, audit chains and shard consensus")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-ledgercore calc [--archive <loc>] [--correlation <id>] [--timestamp <n>] <op> <x> [<y>]")
	fmt.Fprintln(w, "  xdao-ledgercore verify --archive <loc> <manifest-cid>")
	fmt.Fprintln(w, "  xdao-ledgercore bundle export --archive <loc> --manifest <cid> --out <file>")
	fmt.Fprintln(w, "  xdao-ledgercore bundle import --archive <loc> <file>")
	fmt.Fprintln(w, "  xdao-ledgercore round --round <id> --peer <shard>=<host:port> [--peer ...] [--archive <loc>]")
	fmt.Fprintln(w, "  xdao-ledgercore serve-shard --listen <addr> --shard <id> --value <decimal>")
	fmt.Fprintln(w, "  xdao-ledgercore archive --listen <addr> --backend <loc> | --list-backends")
	fmt.Fprintln(w, "  xdao-ledgercore key init --out <file> [--seed-hex <hex>] [--force]")
	fmt.Fprintln(w, "  xdao-ledgercore key derive --seed-file <file> --role <role>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintf(w, "  - calc ops: %s\n", strings.Join(calcOps(), ", "))
	fmt.Fprintln(w, "  - archive locations: mem:, file:<dir>, grpc:<host:port>")
	fmt.Fprintln(w, "  - LEDGERCORE_ARCHIVE_SINKS / _WRITE_POLICY (or LEDGERCORE_ARCHIVE_CONFIG) apply when --archive is omitted")
	fmt.Fprintln(w, "  - LEDGERCORE_PQC_SEED_FILE enables Dilithium3 sealing of every audit entry")
	fmt.Fprintln(w, "  - incidents exit with 302 (validation), 412 (tamper), 511 (consensus), 599 (unrecorded)")
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
