package security

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomToken returns n random bytes hex encoded. It panics only if the
// system random source is unavailable.
func RandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("security: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
