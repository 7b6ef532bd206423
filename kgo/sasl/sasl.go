// Package sasl carries the SCRAM credential-derivation helper the teacher's
// broker connection layer used to negotiate SASL authentication. The wire
// protocol this client speaks has no SASLHandshake/SASLAuthenticate request
// kinds (spec §1 lists SSL/SASL as a non-goal at the protocol level), so
// Mechanism is never driven through an actual handshake here -- only the
// credential derivation survives, guarded by a construction-time
// ConfigurationError in kgo.cfg.validate.
package sasl

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// Mechanism names a SASL mechanism this package knows how to derive
// credentials for.
type Mechanism interface {
	Name() string
}

// ScramSHA256 derives a salted password per RFC 5802 using PBKDF2-HMAC-
// SHA256, the credential shape SCRAM-SHA-256 authentication needs before any
// bytes go over the wire.
type ScramSHA256 struct {
	User string
	Pass string
}

func (ScramSHA256) Name() string { return "SCRAM-SHA-256" }

// SaltedPassword derives the salted password for this mechanism's
// credentials, the first step of a SCRAM handshake (RFC 5802 §3).
func (m ScramSHA256) SaltedPassword(salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(m.Pass), salt, iterations, sha256.Size, sha256.New)
}
