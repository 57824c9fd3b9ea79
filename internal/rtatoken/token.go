// Package rtatoken implements the RTA token's binary format, Ed25519
// signing, and validation rules.
package rtatoken

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/rtaerrors"
)

// Header is the constant magic identifying the current wire format.
var Header = [8]byte{'R', 'T', 'A', '1', 'T', 'O', 'K', 'N'}

const (
	sessionIDSize   = 16
	contextHashSize = 32
)

// SkewTolerance bounds how far into the future a token's timestamp may sit
// before it is rejected as FutureDated (clock skew allowance).
const SkewTolerance = 60 * time.Second

// Token is the RTA protocol's signed, context-bound credential. Field order
// matches the wire layout exactly: it is also the order signed over.
type Token struct {
	Header      [8]byte
	SessionID   [16]byte
	ContextHash [32]byte
	Timestamp   uint64
	Signature   []byte
}

// SessionIDHex returns the session identifier hex-encoded, the key used by
// the context store and the revocation set.
func (t *Token) SessionIDHex() string {
	return hex.EncodeToString(t.SessionID[:])
}

// signingInput returns header||session_id||context_hash||timestamp_be64, the
// exact byte sequence that is signed and later re-verified.
func signingInput(header [8]byte, sessionID [16]byte, contextHash [32]byte, timestamp uint64) []byte {
	buf := make([]byte, 0, 8+sessionIDSize+contextHashSize+8)
	buf = append(buf, header[:]...)
	buf = append(buf, sessionID[:]...)
	buf = append(buf, contextHash[:]...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], timestamp)
	buf = append(buf, tsBuf[:]...)
	return buf
}

// Signer issues tokens with a single Ed25519 private key loaded once at
// startup. A new keypair is never generated per token.
type Signer struct {
	privateKey ed25519.PrivateKey
}

// NewSigner wraps a loaded Ed25519 private key for issuance.
func NewSigner(privateKey ed25519.PrivateKey) *Signer {
	return &Signer{privateKey: privateKey}
}

// Issue produces a Token with the current timestamp, the SHA-256 hash of
// contextBytes, and a signature over the first four fields.
func (s *Signer) Issue(sessionID [16]byte, contextBytes []byte) (*Token, error) {
	contextHash := sha256.Sum256(contextBytes)
	timestamp := uint64(time.Now().Unix())

	input := signingInput(Header, sessionID, contextHash, timestamp)
	signature := ed25519.Sign(s.privateKey, input)

	return &Token{
		Header:      Header,
		SessionID:   sessionID,
		ContextHash: contextHash,
		Timestamp:   timestamp,
		Signature:   signature,
	}, nil
}

// Verifier validates tokens against a single Ed25519 public key, the pair of
// the key used by Signer.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier wraps a loaded Ed25519 public key for validation.
func NewVerifier(publicKey ed25519.PublicKey) *Verifier {
	return &Verifier{publicKey: publicKey}
}

// Validate checks the token's header, signature, context binding, and
// expiry window, in that order, returning a structured rtaerrors.Error on
// the first failure. Age is counted in whole seconds, the resolution of the
// token's timestamp.
func (v *Verifier) Validate(t *Token, contextBytes []byte, maxAge time.Duration) error {
	if t.Header != Header {
		return rtaerrors.New(rtaerrors.CodeBadHeader, "token header does not match magic").WithSource(rtaerrors.SourceToken)
	}

	input := signingInput(t.Header, t.SessionID, t.ContextHash, t.Timestamp)
	if !ed25519.Verify(v.publicKey, input, t.Signature) {
		return rtaerrors.New(rtaerrors.CodeBadSignature, "signature verification failed").WithSource(rtaerrors.SourceToken)
	}

	expectedHash := sha256.Sum256(contextBytes)
	if subtle.ConstantTimeCompare(expectedHash[:], t.ContextHash[:]) != 1 {
		return rtaerrors.New(rtaerrors.CodeContextMismatch, "context hash mismatch").WithSource(rtaerrors.SourceToken)
	}

	now := time.Now()
	issued := time.Unix(int64(t.Timestamp), 0)
	if issued.After(now.Add(SkewTolerance)) {
		return rtaerrors.New(rtaerrors.CodeFutureDated, "token timestamp is in the future").WithSource(rtaerrors.SourceToken)
	}
	if now.Unix()-int64(t.Timestamp) > int64(maxAge/time.Second) {
		return rtaerrors.New(rtaerrors.CodeExpired, "token has expired").WithSource(rtaerrors.SourceToken)
	}

	return nil
}
