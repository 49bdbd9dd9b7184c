// Package fingerprint derives stable cache keys from synthesis requests.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/book-expert/tts-gateway/internal/core"
)

// keyPayload is the canonical tuple a fingerprint is computed over. Short
// field names keep the serialized payload compact and stable.
type keyPayload struct {
	Text     string  `json:"t"`
	Language string  `json:"l"`
	Engine   string  `json:"e"`
	Voice    string  `json:"v"`
	Rate     float64 `json:"r"`
	Pitch    float64 `json:"p"`
	Format   string  `json:"f"`
}

// Fingerprint returns a deterministic SHA-256 hex digest over the normalized
// request tuple. Requests that differ only in non-semantic whitespace or
// float representation noise produce identical keys. The function is pure
// and safe for concurrent use.
func Fingerprint(req core.SynthRequest) string {
	normalized := req.Normalized()

	payload := keyPayload{
		Text:     normalized.Text,
		Language: normalized.Language,
		Engine:   orAuto(normalized.Engine),
		Voice:    orAuto(normalized.Voice),
		Rate:     normalized.Rate,
		Pitch:    normalized.Pitch,
		Format:   string(normalized.Format),
	}

	// The payload contains no values json.Marshal can reject.
	serialized, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("fingerprint payload not serializable: %v", err))
	}

	digest := sha256.Sum256(serialized)

	return hex.EncodeToString(digest[:])
}

func orAuto(value string) string {
	if value == "" {
		return core.AutoSelect
	}

	return value
}
