package fetch

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// maxCanonicalLen bounds the readable portion of a cache file name so long
// URLs stay within filesystem name limits.
const maxCanonicalLen = 180

// CacheFileName returns the deterministic download cache file name for url.
// Non-alphanumeric separators collapse to dashes for readability; a short
// BLAKE3 digest of the original URL keeps distinct URLs from colliding after
// canonicalization.
func CacheFileName(url string) string {
	var b strings.Builder
	for _, r := range url {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	canonical := b.String()
	if len(canonical) > maxCanonicalLen {
		canonical = canonical[:maxCanonicalLen]
	}

	sum := blake3.Sum256([]byte(url))
	return canonical + "-" + hex.EncodeToString(sum[:8])
}
