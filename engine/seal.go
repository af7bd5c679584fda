package engine

import (
	"encoding/hex"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/pqc"
)

// quantum_metadata keys written by a sealing engine.
const (
	MetaAlgorithm = "pqc_alg"
	MetaPublicKey = "pqc_public_key"
	MetaSeedHash  = "pqc_seed_hash"
	MetaSignature = "pqc_signature"
	MetaError     = "pqc_error"
)

func (e *Engine) seal(op string, inputs map[string]any, result any, corr *string, quantum map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(quantum)+4)
	for k, v := range quantum {
		out[k] = v
	}
	out[MetaAlgorithm] = e.signer.Algorithm()

	payload, err := audit.Payload(op, inputs, result, corr)
	if err == nil {
		var sig []byte
		sig, err = e.signer.Sign(e.key, payload)
		if err == nil {
			out[MetaPublicKey] = e.key.PublicHex()
			out[MetaSeedHash] = e.key.SeedHash
			out[MetaSignature] = hex.EncodeToString(sig)
			return out, nil
		}
	}
	if !faults.IsKind(err, faults.KindSigning) {
		err = faults.Wrap(faults.KindSigning, "ENGINE-SEAL-001", "seal "+op+" entry", err)
	}
	out[MetaError] = faults.RuleID(err)
	return out, err
}

// VerifySeal checks the signature recorded in an entry's quantum_metadata
// against the entry's operation payload. Entries without a seal report
// false. It says nothing about the entry's position; pair it with
// audit.VerifyEntries for that.
func VerifySeal(s pqc.Signer, entry audit.Entry) bool {
	meta := entry.QuantumMetadata
	if meta == nil || meta[MetaAlgorithm] != s.Algorithm() {
		return false
	}
	pubHex, _ := meta[MetaPublicKey].(string)
	sigHex, _ := meta[MetaSignature].(string)
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	payload, err := audit.Payload(entry.Operation, entry.Inputs, entry.Result, entry.CorrelationID)
	if err != nil {
		return false
	}
	return s.Verify(pub, payload, sig)
}
