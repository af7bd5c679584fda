package shardrpc

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledgercore/consensus"
	"xdao.co/ledgercore/fixedpoint"
)

// Source produces this shard's sample for a round.
type Source interface {
	Sample(ctx context.Context, roundID string) (consensus.Sample, error)
}

// StaticSource reports a fixed value with an increasing sequence number.
type StaticSource struct {
	ShardID string
	Value   fixedpoint.Value

	mu  sync.Mutex
	seq uint64
}

func (s *StaticSource) Sample(_ context.Context, _ string) (consensus.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return consensus.Sample{ShardID: s.ShardID, Value: s.Value, Sequence: s.seq}, nil
}

// Server exposes a Source over the Samples service.
type Server struct {
	UnimplementedSamplesServer
	Source Source
	Log    *zap.Logger
}

func (s *Server) Latest(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if s == nil || s.Source == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing sample source")
	}
	roundID := in.GetValue()
	if roundID == "" {
		return nil, status.Error(codes.InvalidArgument, "round id is required")
	}
	sample, err := s.Source.Sample(ctx, roundID)
	if err != nil {
		s.logger().Warn("sample source failed", zap.String("round", roundID), zap.Error(err))
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	out, err := encodeSample(roundID, sample)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger().Debug("served sample",
		zap.String("round", roundID),
		zap.String("shard", sample.ShardID),
		zap.Uint64("sequence", sample.Sequence),
	)
	return out, nil
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
