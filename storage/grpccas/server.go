package grpccas

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/storage"
)

// Server exposes a storage.CAS as the audit Archive service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
	Log *zap.Logger
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	b := in.GetValue()
	expected, err := cidutil.ForBytes(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.CAS.Put(b)
	if err != nil {
		s.logger().Warn("archive put failed", zap.String("cid", expected.String()), zap.Error(err))
		return nil, mapErr(err)
	}
	if !id.Equals(expected) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		if storage.IsTampered(err) {
			s.logger().Error("archive object does not match its cid", zap.String("cid", id.String()))
		}
		return nil, mapErr(err)
	}
	if !cidutil.Matches(id, b) {
		s.logger().Error("archive object does not match its cid", zap.String("cid", id.String()))
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

// Attest replays the manifest's chain from the archive's own copy. A chain
// that fails verification is reported as DataLoss with the rule id as the
// status message.
func (s *Server) Attest(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cidutil.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	chain, err := audit.Replay(s.CAS, id)
	if err != nil {
		s.logger().Error("archive attestation failed",
			zap.String("manifest", id.String()),
			zap.String("rule", faults.RuleID(err)),
			zap.Error(err),
		)
		if storage.IsNotFound(err) {
			return nil, status.Error(codes.NotFound, faults.RuleID(err))
		}
		if faults.IsKind(err, faults.KindChainIntegrity) {
			return nil, status.Error(codes.DataLoss, faults.RuleID(err))
		}
		return nil, status.Error(codes.Internal, faults.RuleID(err))
	}
	s.logger().Info("archive attested chain",
		zap.String("manifest", id.String()),
		zap.Int("length", chain.Len()),
	)
	return wrapperspb.String(chain.ChainHash()), nil
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, storage.ErrCIDMismatch):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, storage.ErrImmutable):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
