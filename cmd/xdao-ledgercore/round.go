package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/consensus"
	"xdao.co/ledgercore/incident"
	"xdao.co/ledgercore/shardrpc"
)

func cmdRound(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("round", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var roundID, archiveLoc string
	var peers stringList
	var timestamp uint64
	var limit int
	fs.StringVar(&roundID, "round", "", "Round identifier")
	fs.Var(&peers, "peer", "Shard endpoint as <shard>=<host:port> (repeatable)")
	fs.StringVar(&archiveLoc, "archive", "", "Archive location for the audit chain (default: LEDGERCORE_ARCHIVE_SINKS)")
	fs.Uint64Var(&timestamp, "timestamp", 0, "Entry timestamp")
	fs.IntVar(&limit, "parallel", 0, "Maximum concurrent shard requests (0 = one per shard)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if roundID == "" || len(peers) == 0 || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore round --round <id> --peer <shard>=<host:port> [--peer ...]")
		return 2
	}
	endpoints, err := parsePeers(peers)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	a, err := newApp(out, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}
	defer a.close()

	cfg, err := a.cfg.ConsensusConfig()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 1
	}

	sink, closeSink, err := a.archive(archiveLoc)
	if err != nil {
		fmt.Fprintf(errOut, "archive: %v\n", err)
		return 1
	}
	defer closeSink()

	g := &shardrpc.Gatherer{Peers: map[string]shardrpc.Peer{}, Limit: limit, Log: a.log}
	shards := make([]string, 0, len(endpoints))
	for shard, target := range endpoints {
		client, err := shardrpc.Dial(target, shardrpc.DialOptions{Timeout: cfg.Deadline})
		if err != nil {
			// An unreachable shard is a missing participant, not a CLI error.
			a.log.Warn("dial shard", zap.String("shard", shard), zap.String("target", target), zap.Error(err))
		} else {
			defer client.Close()
			g.Peers[shard] = client
		}
		shards = append(shards, shard)
	}
	sort.Strings(shards)

	clock := audit.FixedClock(timestamp)
	chain := a.chain(sink)
	code := 0
	handler := a.incidents(chain, clock, &code)
	coord, err := consensus.New(cfg, a.engine(clock),
		consensus.WithClock(clock),
		consensus.WithLogger(a.log),
		consensus.WithMetrics(a.metrics),
		consensus.WithEscalator(func(res consensus.Result, err error) {
			rec := handler.TriggerFor(err, res.Evidence)
			a.report(rec, chain, sink)
		}),
	)
	if err != nil {
		fmt.Fprintf(errOut, "consensus: %v\n", err)
		return 1
	}

	res, err := coord.Run(context.Background(), chain, g, roundID, shards)
	if err != nil {
		if handler.State() == incident.StateHalted {
			return code
		}
		// Failures outside the agreement itself (a broken sink, a gather
		// error) still halt with the class their error maps to.
		rec := handler.TriggerFor(err, map[string]any{"round": roundID})
		a.report(rec, chain, sink)
		return code
	}

	fmt.Fprintf(out, "value %s\n", res.GlobalValue)
	fmt.Fprintf(out, "mode %s\n", res.DegradationMode)
	fmt.Fprintf(out, "agreement %s\n", res.AgreementRatio)
	if len(res.Outliers) > 0 {
		fmt.Fprintf(out, "outliers %s\n", strings.Join(res.Outliers, ","))
	}
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

// parsePeers turns repeated <shard>=<host:port> flags into a map, rejecting
// duplicate shard ids.
func parsePeers(peers []string) (map[string]string, error) {
	out := make(map[string]string, len(peers))
	for _, p := range peers {
		shard, target, ok := strings.Cut(p, "=")
		shard, target = strings.TrimSpace(shard), strings.TrimSpace(target)
		if !ok || shard == "" || target == "" {
			return nil, fmt.Errorf("invalid --peer %q (want <shard>=<host:port>)", p)
		}
		if _, dup := out[shard]; dup {
			return nil, fmt.Errorf("duplicate --peer for shard %q", shard)
		}
		out[shard] = target
	}
	return out, nil
}
