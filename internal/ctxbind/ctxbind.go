// Package ctxbind derives the context bytes hashed into an RTA token at
// issuance and recomputed at enforcement, so both endpoints bind to the
// same authorization context without a shared cache or a second round-trip
// of the original OAuth token.
package ctxbind

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// salt and info pin the derivation to this protocol and purpose, so the
// same subject string never collides with a key derived for another use.
var (
	salt = []byte("rta-context-binding-v1")
	info = []byte("rta-context")
)

// outputSize is the number of derived bytes hashed into a token's context
// binding.
const outputSize = 32

// Derive returns the deterministic byte encoding of a subject identity,
// via HKDF-SHA256 over the subject as input keying material. At issuance,
// subject is the IdP introspection response's sub claim (falling back to
// the caller-supplied agent id when the IdP omits it). At enforcement,
// subject is the user_id of the session's Authorization Context, which the
// external policy engine populates with that same identity. Both sides
// derive identical bytes as a result.
func Derive(subject string) []byte {
	h := hkdf.New(sha256.New, []byte(subject), salt, info)
	out := make([]byte, outputSize)
	if _, err := io.ReadFull(h, out); err != nil {
		// hkdf.New with SHA-256 can only fail to expand to output sizes far
		// beyond outputSize; a fixed-size read here cannot hit that path.
		panic("ctxbind: unexpected hkdf expansion failure: " + err.Error())
	}
	return out
}
