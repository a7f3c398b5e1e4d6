package avatar

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const gravatarBase = "https://www.gravatar.com/avatar/"

// Gravatar returns the Gravatar image URL for email. The address is trimmed
// and lowercased before hashing.
func Gravatar(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	sum := md5.Sum([]byte(normalized))
	return gravatarBase + hex.EncodeToString(sum[:])
}
