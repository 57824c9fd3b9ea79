package rtatoken

import (
	"encoding/binary"
	"fmt"

	"github.com/empowerID/RealTimeAuth/internal/rtaerrors"
)

// minEncodedSize covers header+session_id+context_hash+timestamp+sig_len,
// before any signature bytes.
const minEncodedSize = 8 + sessionIDSize + contextHashSize + 8 + 8

// Encode serializes a Token into its fixed, deterministic wire format:
// header || session_id || context_hash || timestamp_be64 || sig_len_le64 || signature.
func Encode(t *Token) []byte {
	out := make([]byte, 0, minEncodedSize+len(t.Signature))
	out = append(out, t.Header[:]...)
	out = append(out, t.SessionID[:]...)
	out = append(out, t.ContextHash[:]...)

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], t.Timestamp)
	out = append(out, tsBuf[:]...)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(t.Signature)))
	out = append(out, lenBuf[:]...)

	out = append(out, t.Signature...)
	return out
}

// Decode parses the fixed wire format back into a Token. It validates only
// structural well-formedness (magic header, length framing); cryptographic
// and temporal validity are checked separately by Verifier.Validate.
func Decode(data []byte) (*Token, error) {
	if len(data) < minEncodedSize {
		return nil, rtaerrors.New(rtaerrors.CodeBadHeader, "token too short to decode").WithSource(rtaerrors.SourceToken)
	}

	var t Token
	offset := 0

	copy(t.Header[:], data[offset:offset+8])
	offset += 8
	if t.Header != Header {
		return nil, rtaerrors.New(rtaerrors.CodeBadHeader, "unrecognized token header").WithSource(rtaerrors.SourceToken)
	}

	copy(t.SessionID[:], data[offset:offset+sessionIDSize])
	offset += sessionIDSize

	copy(t.ContextHash[:], data[offset:offset+contextHashSize])
	offset += contextHashSize

	t.Timestamp = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	sigLen := binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8

	if uint64(len(data)-offset) < sigLen {
		return nil, rtaerrors.New(rtaerrors.CodeBadHeader, fmt.Sprintf("truncated signature: want %d bytes, have %d", sigLen, len(data)-offset)).WithSource(rtaerrors.SourceToken)
	}

	t.Signature = append([]byte(nil), data[offset:offset+int(sigLen)]...)
	return &t, nil
}
