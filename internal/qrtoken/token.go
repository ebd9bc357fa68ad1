package qrtoken

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TypeTag is the fixed type field carried by structured QR payloads.
const TypeTag = "attendance"

// Token is a structured, signed QR payload. It is transient: decoded from a
// scan or serialized onto a user's QR code, never persisted on its own.
type Token struct {
	UserID    string `json:"userId"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature,omitempty"`
}

// Kind discriminates the outcome of decoding a scanned string.
type Kind int

const (
	// KindInvalid means the scan matched neither format.
	KindInvalid Kind = iota
	// KindToken means a structured payload with a valid signature.
	KindToken
	// KindLegacy means a legacy ATTEND:<identifier> payload.
	KindLegacy
)

// Decoded is the tagged result of decoding one scanned string. Exactly one
// of Token/LegacyID is meaningful, selected by Kind.
type Decoded struct {
	Kind     Kind
	Token    Token
	LegacyID string
}

var legacyPattern = regexp.MustCompile(`(?i)^ATTEND:(.+)$`)

// Codec signs and decodes QR payloads under a fixed shared secret.
type Codec struct {
	secret string
}

// NewCodec creates a codec with the given signing secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: secret}
}

// Issue builds a signed payload string encoding the user id.
func (c *Codec) Issue(userID string) (string, error) {
	tok := Token{
		UserID:    userID,
		Type:      TypeTag,
		Timestamp: time.Now().Format(time.RFC3339),
		Signature: c.Sign(userID),
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Sign computes the payload signature for a user id: a rolling hash with
// 32-bit signed overflow semantics, absolute value, hex-encoded. Weak by
// construction; kept for wire compatibility with already-issued codes.
func (c *Codec) Sign(userID string) string {
	data := userID + c.secret
	var hash int32
	for _, r := range data {
		hash = (hash << 5) - hash + int32(r)
	}
	v := int64(hash)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 16)
}

// Verify reports whether the token's signature matches its user id.
func (c *Codec) Verify(tok Token) bool {
	return tok.Signature == c.Sign(tok.UserID)
}

// Decode classifies a scanned string. A structured payload with a bad
// signature is not an error: it falls through to legacy matching, so a
// tampered token degrades to identifier lookup rather than hard rejection.
func (c *Codec) Decode(raw string) Decoded {
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err == nil {
		if tok.UserID != "" && tok.Type == TypeTag && c.Verify(tok) {
			return Decoded{Kind: KindToken, Token: tok}
		}
	}

	if m := legacyPattern.FindStringSubmatch(raw); m != nil {
		id := strings.TrimSpace(m[1])
		if id != "" {
			return Decoded{Kind: KindLegacy, LegacyID: id}
		}
	}

	return Decoded{Kind: KindInvalid}
}
