package crypto

import "golang.org/x/crypto/argon2"

// DeriveSiteKey derives a 32-byte AES-256 key from a site's configured
// encryption password, scoped by salt (the site's prefix, typically) so
// two sites sharing a password never share a key. Deterministic: the
// same (password, salt) pair always yields the same key, which is
// required since the key must be re-derived on every request rather
// than stored.
func DeriveSiteKey(password, salt string) []byte {
	return argon2.IDKey([]byte(password), []byte(salt), argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}
