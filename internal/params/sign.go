package params

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
)

// SignatureKey is the parameter name carrying the computed signature. It is
// never part of the signed string itself.
const SignatureKey = "signature"

// Signer computes the HMAC-SHA1 signature over a normalized parameter map.
type Signer struct {
	secret string
}

// NewSigner returns a Signer for the given shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: secret}
}

// Sign computes the base64 signature of the canonical query string.
//
// Parameters are rendered as "key=encodedValue" in key order and joined with
// "&", the whole string is lowercased, and the result is HMAC-SHA1 digested
// with the secret. Any "signature" key already present is ignored.
func (s *Signer) Sign(values map[string]string) string {
	keys := make([]string, 0, len(values))

	for key := range values {
		if key == SignatureKey {
			continue
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+Encode(values[key]))
	}

	mac := hmac.New(sha1.New, []byte(s.secret))
	mac.Write([]byte(strings.ToLower(strings.Join(pairs, "&"))))

	return strings.TrimSpace(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

// Attach writes the computed signature into values, replacing any stale one.
func (s *Signer) Attach(values map[string]string) {
	delete(values, SignatureKey)
	values[SignatureKey] = s.Sign(values)
}

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes a parameter value for signing and transmission.
// Unreserved characters plus '*' pass through; everything else, space
// included, becomes %XX per UTF-8 byte.
func Encode(value string) string {
	var b strings.Builder

	for i := 0; i < len(value); i++ {
		c := value[i]
		if encodeUnchanged(c) {
			b.WriteByte(c)

			continue
		}

		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}

	return b.String()
}

func encodeUnchanged(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '.' || c == '-' || c == '_' || c == '~' || c == '*':
		return true
	default:
		return false
	}
}
