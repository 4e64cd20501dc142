// Package fingerprint computes the cache key used to recognise a message
// the engine has already classified: a SHA-256 hash of the normalised
// sender address and subject line.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
)

// replyForwardRe mirrors the original classifier's non-anchored prefix
// strip: it removes every "Re:"/"Fwd:"/"Fw:" occurrence anywhere in the
// subject, not just a single leading one, so "Re: Fwd: Re: Invoice" and
// "Invoice" fingerprint identically.
var replyForwardRe = regexp.MustCompile(`(?i)\b(re|fwd?|fw):\s*`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormaliseSubject strips reply/forward prefixes wherever they appear,
// folds case, collapses internal whitespace runs, and trims ends.
func NormaliseSubject(subject string) string {
	cleaned := replyForwardRe.ReplaceAllString(subject, "")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

// NormaliseSender reduces a From header to "user@domain" using syntax
// validation/normalisation rather than hand-rolled address parsing, so
// display-name variations and casing differences collapse to the same key.
func NormaliseSender(from string) string {
	v := mailvalidate.ValidateEmailSyntax(from)
	if v.IsValid && v.Domain != "" {
		return strings.ToLower(v.User + "@" + v.Domain)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// Hash returns the cache key for a (from, subject) pair: invariant under
// Re:/Fwd: prefixes, case, and whitespace differences (see the testable
// property this mirrors).
func Hash(from, subject string) string {
	key := NormaliseSender(from) + "|||" + NormaliseSubject(subject)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
