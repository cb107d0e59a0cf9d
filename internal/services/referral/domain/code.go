package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
)

// CodePrefix marks referral codes embedded in /start payloads.
const CodePrefix = "ref_"

const codeDigestBytes = 15

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewReferralCode mints an opaque referral code for a user. Eight random
// bytes and the user id are hashed through SHA-256 and the first fifteen
// digest bytes are base32-encoded, so codes never expose the user id and
// collisions stay negligible.
func NewReferralCode(userID int64) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:8]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	binary.BigEndian.PutUint64(raw[8:], uint64(userID))
	sum := sha256.Sum256(raw[:])
	encoded := codeEncoding.EncodeToString(sum[:codeDigestBytes])
	return CodePrefix + strings.ToLower(encoded), nil
}

// IsReferralCode reports whether a /start payload carries a referral code.
func IsReferralCode(payload string) bool {
	payload = strings.TrimSpace(payload)
	return strings.HasPrefix(payload, CodePrefix) && len(payload) > len(CodePrefix)
}
