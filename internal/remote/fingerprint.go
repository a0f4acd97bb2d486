package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

const fingerprintDomain = "hops/solve-input/v1"

// Fingerprint identifies a solve input. Two payloads with the same pointer and
// the same values share a fingerprint regardless of their cache flag.
func Fingerprint(input *Schema) (string, error) {
	canonical := Schema{
		Pointer: norm.NFC.String(input.Pointer),
		Algo:    input.Algo,
		Values:  input.Values,
	}

	// encoding/json sorts map keys, so InnerTree paths are stable
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode solve input: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
