package application

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	randomCodeLength = 16
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// CodeHasher normalizes, validates and hashes redeem codes. The pepper keeps
// stored hashes useless without service configuration; lookups require a
// deterministic digest, which is why this is sha256 and not a salted KDF.
type CodeHasher struct {
	pepper string
}

func NewCodeHasher(pepper string) CodeHasher {
	return CodeHasher{pepper: pepper}
}

// Normalize folds user input into the canonical code form: NFKC, uppercase,
// separators stripped. Empty input is rejected before any lookup happens.
func (h CodeHasher) Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", domain.ErrCodeInvalid
	}
	folded := strings.ToUpper(norm.NFKC.String(trimmed))
	replacer := strings.NewReplacer(" ", "", "-", "", "_", "", "\t", "")
	return replacer.Replace(folded), nil
}

// Validate checks the canonical form against the accepted charset and length.
func (h CodeHasher) Validate(normalized string) error {
	if len(normalized) < 8 || len(normalized) > 64 {
		return fmt.Errorf("%w: code must be 8-64 characters", domain.ErrCodeInvalid)
	}
	if !codePattern.MatchString(normalized) {
		return fmt.Errorf("%w: code must contain only A-Z and 0-9", domain.ErrCodeInvalid)
	}
	return nil
}

// Hash returns hex(sha256(pepper:code)) for storage and lookup.
func (h CodeHasher) Hash(normalized string) string {
	sum := sha256.Sum256([]byte(h.pepper + ":" + normalized))
	return hex.EncodeToString(sum[:])
}

// GenerateRandomCode mints a 16-character code from the accepted alphabet
// using crypto/rand.
func (h CodeHasher) GenerateRandomCode() (string, error) {
	var b strings.Builder
	b.Grow(randomCodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < randomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatForDisplay groups generated codes as XXXX-XXXX-XXXX-XXXX. Codes of
// other lengths (custom reusable ones) are returned unchanged.
func (h CodeHasher) FormatForDisplay(raw string) string {
	if len(raw) != randomCodeLength {
		return raw
	}
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16]
}
