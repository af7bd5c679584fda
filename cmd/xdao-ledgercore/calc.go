package main

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/engine"
	"xdao.co/ledgercore/fixedpoint"
)

type calcOp struct {
	arity int
	call  func(e *engine.Engine, c *audit.Chain, args []fixedpoint.Value, ann audit.Annotation) (string, error)
}

func unaryOp(fn func(*engine.Engine, *audit.Chain, fixedpoint.Value, ...audit.Annotation) (fixedpoint.Value, error)) calcOp {
	return calcOp{arity: 1, call: func(e *engine.Engine, c *audit.Chain, args []fixedpoint.Value, ann audit.Annotation) (string, error) {
		v, err := fn(e, c, args[0], ann)
		return v.String(), err
	}}
}

func binaryOp(fn func(*engine.Engine, *audit.Chain, fixedpoint.Value, fixedpoint.Value, ...audit.Annotation) (fixedpoint.Value, error)) calcOp {
	return calcOp{arity: 2, call: func(e *engine.Engine, c *audit.Chain, args []fixedpoint.Value, ann audit.Annotation) (string, error) {
		v, err := fn(e, c, args[0], args[1], ann)
		return v.String(), err
	}}
}

var ops = map[string]calcOp{
	"add":     binaryOp((*engine.Engine).Add),
	"sub":     binaryOp((*engine.Engine).Sub),
	"mul":     binaryOp((*engine.Engine).Mul),
	"div":     binaryOp((*engine.Engine).Div),
	"absdiff": binaryOp((*engine.Engine).AbsDiff),
	"pow":     binaryOp((*engine.Engine).Pow),
	"abs":     unaryOp((*engine.Engine).Abs),
	"sqrt":    unaryOp((*engine.Engine).Sqrt),
	"ln":      unaryOp((*engine.Engine).Ln),
	"exp":     unaryOp((*engine.Engine).Exp),
	"atan":    unaryOp((*engine.Engine).Atan),
	"compare": {arity: 2, call: func(e *engine.Engine, c *audit.Chain, args []fixedpoint.Value, ann audit.Annotation) (string, error) {
		n, err := e.Compare(c, args[0], args[1], ann)
		return strconv.Itoa(n), err
	}},
}

func calcOps() []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cmdCalc(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("calc", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var archiveLoc, correlation string
	var timestamp uint64
	var now bool
	fs.StringVar(&archiveLoc, "archive", "", "Archive location for the audit chain (default: LEDGERCORE_ARCHIVE_SINKS)")
	fs.StringVar(&correlation, "correlation", "", "Correlation id recorded on the entry")
	fs.Uint64Var(&timestamp, "timestamp", 0, "Entry timestamp")
	fs.BoolVar(&now, "now", false, "Use the current Unix time as the entry timestamp")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore calc [flags] <op> <x> [<y>]")
		return 2
	}
	name := fs.Arg(0)
	op, ok := ops[name]
	if !ok {
		fmt.Fprintf(errOut, "unknown op %q (ops: %v)\n", name, calcOps())
		return 2
	}
	if fs.NArg()-1 != op.arity {
		fmt.Fprintf(errOut, "%s takes %d operand(s)\n", name, op.arity)
		return 2
	}
	operands := make([]fixedpoint.Value, op.arity)
	for i := range operands {
		v, err := fixedpoint.FromDecimalString(fs.Arg(i + 1))
		if err != nil {
			fmt.Fprintf(errOut, "operand %d: %v\n", i+1, err)
			return 2
		}
		operands[i] = v
	}
	if now {
		timestamp = uint64(time.Now().Unix())
	}

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	sink, closeSink, err := a.archive(archiveLoc)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	defer closeSink()

	clock := audit.FixedClock(timestamp)
	chain := a.chain(sink)
	result, opErr := op.call(a.engine(clock), chain, operands, audit.Annotation{CorrelationID: correlation})
	if opErr != nil {
		code := 0
		rec := a.incidents(chain, clock, &code).TriggerFor(opErr, map[string]any{
			"operation": name,
			"operands":  operands,
		})
		a.report(rec, chain, sink)
		return code
	}

	fmt.Fprintln(out, result)
	fmt.Fprintf(out, "chain_hash %s\n", chain.ChainHash())
	if sink != nil {
		id, err := chain.Checkpoint()
		if err != nil {
			fmt.Fprintf(errOut, "checkpoint: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "manifest %s\n", id)
	}
	return 0
}
