// Package identity derives stable identifiers for imported transactions.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// fieldSeparator joins the fingerprint fields.
const fieldSeparator = "|"

// Fallback holds the content used to fingerprint a transaction that arrived
// without a source-supplied id.
type Fallback struct {
	Date        civil.Date
	Description string
	Amount      decimal.Decimal
	Category    string
}

// Resolve returns the identifier for a transaction.
// A non-empty supplied id is returned verbatim; otherwise a SHA-256 content
// fingerprint over the fallback fields is returned as lowercase hex.
func Resolve(suppliedID string, in Fallback) string {
	if strings.TrimSpace(suppliedID) != "" {
		return suppliedID
	}
	return Fingerprint(in)
}

// Fingerprint hashes the normalized fallback fields.
func Fingerprint(in Fallback) string {
	parts := []string{
		in.Date.String(),
		strings.ToLower(strings.TrimSpace(in.Description)),
		in.Amount.String(),
		strings.ToLower(strings.TrimSpace(in.Category)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}
