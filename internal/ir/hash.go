package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainFrame = "ckpt/frame/v1"
	DomainState = "ckpt/state/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FrameID computes the content-addressed ID of an execution frame.
// The ID is stable across runs given the same flow token, target, method,
// arguments and logical clock value, which keeps journals diffable.
//
// A nil or IRNull payload hashes as an empty object because canonical JSON
// rejects null.
func FrameID(flowToken string, actor ActorID, method string, args IRValue, seq int64) (string, error) {
	if args == nil {
		args = IRObject{}
	}
	if _, ok := args.(IRNull); ok {
		args = IRObject{}
	}

	obj := IRObject{
		"flow_token": IRString(flowToken),
		"actor":      IRString(actor),
		"method":     IRString(method),
		"args":       args,
		"seq":        IRInt(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("FrameID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainFrame, canonical), nil
}

// StateHash fingerprints a committed state value, so states from two
// journals can be compared without diffing them.
func StateHash(state IRObject) (string, error) {
	canonical, err := MarshalStored(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustFrameID is like FrameID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFrameID(flowToken string, actor ActorID, method string, args IRValue, seq int64) string {
	id, err := FrameID(flowToken, actor, method, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
