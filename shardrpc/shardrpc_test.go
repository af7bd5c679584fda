package shardrpc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/consensus"
	"xdao.co/ledgercore/engine"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// serve starts srv on an in-memory listener and returns a connected client.
func serve(t *testing.T, srv SamplesServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer()
	RegisterSamplesServer(s, srv)
	go func() {
		_ = s.Serve(lis)
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	client, err := Dial("bufnet", DialOptions{Options: []grpc.DialOption{grpc.WithContextDialer(dialer)}})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		s.Stop()
	})
	return client
}

type blockingSource struct{}

func (blockingSource) Sample(ctx context.Context, _ string) (consensus.Sample, error) {
	<-ctx.Done()
	return consensus.Sample{}, ctx.Err()
}

type forgingServer struct{ UnimplementedSamplesServer }

func (forgingServer) Latest(_ context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	st, err := encodeSample(in.GetValue(), consensus.Sample{ShardID: "forger", Value: fixedpoint.FromInteger(42), Sequence: 1})
	if err != nil {
		return nil, err
	}
	st.Fields["value"] = structpb.NewStringValue("4200.000000000000000000")
	return st, nil
}

func TestLatestRoundTrip(t *testing.T) {
	client := serve(t, &Server{Source: &StaticSource{ShardID: "s1", Value: fixedpoint.MustParse("12.5")}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := client.Latest(ctx, "round-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if first.ShardID != "s1" || first.Value != fixedpoint.MustParse("12.5") || first.Sequence != 1 {
		t.Fatalf("sample = %+v", first)
	}
	want, err := PacketRef("round-1", first)
	if err != nil || first.PacketRef != want {
		t.Fatalf("packet ref = %q, want %q (%v)", first.PacketRef, want, err)
	}

	second, err := client.Latest(ctx, "round-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if second.Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", second.Sequence)
	}
}

func TestLatestRejectsForgedPacket(t *testing.T) {
	client := serve(t, forgingServer{})
	_, err := client.Latest(context.Background(), "round-1")
	if faults.RuleID(err) != "SHARDRPC-PACKET-003" {
		t.Fatalf("expected packet ref mismatch, got %v", err)
	}
}

func TestLatestRequiresRoundID(t *testing.T) {
	client := serve(t, &Server{Source: &StaticSource{ShardID: "s1", Value: fixedpoint.One()}})
	if _, err := client.Latest(context.Background(), ""); err == nil {
		t.Fatalf("expected InvalidArgument")
	}
}

func TestDecodeRejectsWrongRound(t *testing.T) {
	st, err := encodeSample("r1", consensus.Sample{ShardID: "a", Value: fixedpoint.One()})
	if err != nil {
		t.Fatalf("encodeSample: %v", err)
	}
	if _, err := decodeSample("r2", st); faults.RuleID(err) != "SHARDRPC-PACKET-002" {
		t.Fatalf("expected round mismatch, got %v", err)
	}
	st.Fields["sequence"] = structpb.NewNumberValue(3)
	if _, err := decodeSample("r1", st); faults.RuleID(err) != "SHARDRPC-PACKET-001" {
		t.Fatalf("expected malformed packet, got %v", err)
	}
}

func TestGatherFeedsConsensusRound(t *testing.T) {
	peers := map[string]Peer{
		"slow": serve(t, &Server{Source: blockingSource{}}),
		"fake": serve(t, forgingServer{}),
		"liar": serve(t, &Server{Source: &StaticSource{ShardID: "s0", Value: fixedpoint.FromInteger(1)}}),
	}
	var shards []string
	for i := 0; i < 9; i++ {
		id := fmt.Sprintf("s%d", i)
		v := fixedpoint.FromInteger(42)
		if i == 2 {
			v = fixedpoint.MustParse("42.5")
		}
		peers[id] = serve(t, &Server{Source: &StaticSource{ShardID: id, Value: v}})
		shards = append(shards, id)
	}
	shards = append(shards, "slow", "fake", "liar", "absent")

	cfg := consensus.DefaultConfig()
	cfg.Deadline = 300 * time.Millisecond
	coord, err := consensus.New(cfg, engine.New())
	if err != nil {
		t.Fatalf("consensus.New: %v", err)
	}

	chain := audit.NewChain()
	res, err := coord.Run(context.Background(), chain, &Gatherer{Peers: peers, Limit: 4}, "round-9", shards)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Achieved || res.GlobalValue != fixedpoint.FromInteger(42) {
		t.Fatalf("result = %+v", res)
	}
	wantMissing := []string{"absent", "fake", "liar", "slow"}
	if len(res.Missing) != len(wantMissing) {
		t.Fatalf("missing = %v, want %v", res.Missing, wantMissing)
	}
	for i := range wantMissing {
		if res.Missing[i] != wantMissing[i] {
			t.Fatalf("missing = %v, want %v", res.Missing, wantMissing)
		}
	}
	if err := chain.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
