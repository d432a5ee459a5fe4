package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalPayload marshals v to JSON with object keys sorted, so equal
// payloads always produce equal bytes.
func CanonicalPayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	// Round-trip through a generic value: encoding/json sorts map keys.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to normalise payload: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DedupKey identifies a (type, user, payload) tuple.
func DedupKey(jobType Type, userID, canonicalPayload string) string {
	sum := sha256.Sum256([]byte(string(jobType) + "|" + userID + "|" + canonicalPayload))
	return hex.EncodeToString(sum[:])
}

// ThreadKeyOf extracts a thread id from a canonical payload, if present.
func ThreadKeyOf(canonicalPayload string) string {
	var p struct {
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal([]byte(canonicalPayload), &p); err != nil {
		return ""
	}
	return p.ThreadID
}
