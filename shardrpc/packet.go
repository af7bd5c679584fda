package shardrpc

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/consensus"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
)

// PacketRef is the CID of the canonical sample packet. A receiver that
// recomputes a different ref knows the sample was altered in transit.
func PacketRef(roundID string, s consensus.Sample) (string, error) {
	b, err := canonical.Encode(map[string]any{
		"round":    roundID,
		"sequence": s.Sequence,
		"shard_id": s.ShardID,
		"value":    s.Value,
	})
	if err != nil {
		return "", err
	}
	return cidutil.String(b), nil
}

func encodeSample(roundID string, s consensus.Sample) (*structpb.Struct, error) {
	ref, err := PacketRef(roundID, s)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"packet_ref": ref,
		"round":      roundID,
		"sequence":   strconv.FormatUint(s.Sequence, 10),
		"shard_id":   s.ShardID,
		"value":      s.Value.CanonicalString(),
	})
}

func decodeSample(roundID string, st *structpb.Struct) (consensus.Sample, error) {
	fields := st.GetFields()
	str := func(key string) (string, error) {
		v, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("missing %s", key)
		}
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return "", fmt.Errorf("%s must be a string", key)
		}
		return s.StringValue, nil
	}

	var out consensus.Sample
	round, err := str("round")
	if err != nil {
		return out, malformed(err)
	}
	if round != roundID {
		return out, faults.New(faults.KindConsensus, "SHARDRPC-PACKET-002", fmt.Sprintf("sample is for round %q, want %q", round, roundID))
	}
	if out.ShardID, err = str("shard_id"); err != nil {
		return out, malformed(err)
	}
	raw, err := str("value")
	if err != nil {
		return out, malformed(err)
	}
	if out.Value, err = fixedpoint.FromDecimalString(raw); err != nil {
		return out, malformed(err)
	}
	seq, err := str("sequence")
	if err != nil {
		return out, malformed(err)
	}
	if out.Sequence, err = strconv.ParseUint(seq, 10, 64); err != nil {
		return out, malformed(err)
	}
	if out.PacketRef, err = str("packet_ref"); err != nil {
		return out, malformed(err)
	}
	want, err := PacketRef(roundID, out)
	if err != nil {
		return out, malformed(err)
	}
	if want != out.PacketRef {
		return out, faults.New(faults.KindChainIntegrity, "SHARDRPC-PACKET-003", "packet_ref does not match sample contents")
	}
	return out, nil
}

func malformed(err error) error {
	return faults.Wrap(faults.KindParse, "SHARDRPC-PACKET-001", "malformed sample packet: "+err.Error(), err)
}
