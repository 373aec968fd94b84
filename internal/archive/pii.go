package archive

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// HashContact returns the hex-encoded SHA-256 of a normalized email or
// phone number. Manifests carry the hash so a customer's bookings can be
// found for erasure requests without storing the address itself.
func HashContact(value string) string {
	h := sha256.Sum256([]byte(normalizeContact(value)))
	return fmt.Sprintf("%x", h)
}

func normalizeContact(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if strings.Contains(value, "@") {
		return value
	}
	var b strings.Builder
	for _, r := range value {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
