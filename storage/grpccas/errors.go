package grpccas

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/storage"
)

// mapRPC turns archive status codes back into storage sentinels so callers
// can use storage.IsNotFound and storage.IsTampered on remote errors.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		return storage.ErrInvalidCID
	case codes.DataLoss:
		return storage.ErrCIDMismatch
	case codes.AlreadyExists:
		return storage.ErrImmutable
	default:
		return err
	}
}

// mapAttest keeps the remote rule id on attestation failures.
func mapAttest(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return faults.Wrap(faults.KindInternal, "GRPCCAS-ATTEST-002", "attest request failed", err)
	}
	switch st.Code() {
	case codes.DataLoss:
		return faults.Wrap(faults.KindChainIntegrity, "GRPCCAS-ATTEST-001", "archive rejected chain: "+st.Message(), storage.ErrCIDMismatch)
	case codes.NotFound:
		return faults.Wrap(faults.KindInternal, "GRPCCAS-ATTEST-002", "archive has no such manifest", storage.ErrNotFound)
	default:
		return faults.Wrap(faults.KindInternal, "GRPCCAS-ATTEST-002", "attest request failed: "+st.Message(), err)
	}
}
