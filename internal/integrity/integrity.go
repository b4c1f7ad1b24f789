// Package integrity binds requests made during a lockdown-required exam
// attempt to a secret provisioned to the authorized exam client. The client
// sends sha256(requestURL + configKey) truncated to a 32-hex-char prefix;
// the server recomputes and compares. The truncation matches the external
// locked-down-browser client and must not be widened, or interoperability
// with deployed clients breaks.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/examlock/examlock-backend/internal/model"
)

// PrefixLength is the number of hex characters transmitted on the wire.
const PrefixLength = 32

// HeaderName carries the truncated digest on attempt-scoped requests.
const HeaderName = "X-SafeExamBrowser-RequestHash"

// keyPurposeTag salts the fallback key derivation for clients that ship only
// a quit-password hash instead of an explicit config key. Both sides must
// use the same tag.
const keyPurposeTag = "config-key"

// ErrConfigMissing means the exam requires lockdown but carries no key
// material. Validation cannot run; the route must fail closed.
var ErrConfigMissing = errors.New("integrity config missing")

// DeriveKey returns the full digest over the exact request URL followed by
// the configuration key. Order-sensitive: URL first.
func DeriveKey(requestURL, configKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(requestURL + configKey))
}

// HeaderValue returns the wire value: the hex digest truncated to
// PrefixLength characters.
func HeaderValue(requestURL, configKey string) string {
	digest := DeriveKey(requestURL, configKey)
	return hex.EncodeToString(digest[:])[:PrefixLength]
}

// Validate recomputes the prefix and compares it against the received value
// in constant time. A prefix of any other length is rejected outright.
func Validate(receivedPrefix, requestURL, configKey string) bool {
	if len(receivedPrefix) != PrefixLength {
		return false
	}
	expected := HeaderValue(requestURL, configKey)
	return subtle.ConstantTimeCompare([]byte(receivedPrefix), []byte(expected)) == 1
}

// ConfigKey resolves the key material for an exam: the explicit config key
// when present, otherwise a key derived from the quit-password hash and the
// purpose tag, truncated like the wire prefix. Returns ErrConfigMissing when
// neither source exists.
func ConfigKey(cfg model.IntegrityConfig) (string, error) {
	if cfg.ConfigKey != "" {
		return cfg.ConfigKey, nil
	}
	if cfg.QuitPasswordHash != "" {
		digest := sha256.Sum256([]byte(cfg.QuitPasswordHash + keyPurposeTag))
		return hex.EncodeToString(digest[:])[:PrefixLength], nil
	}
	return "", ErrConfigMissing
}
