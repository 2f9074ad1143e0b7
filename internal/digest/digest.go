// Package digest computes the two hashes a SRUN login carries: the keyed
// password hash and the request checksum.
package digest

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	// DefaultN is the fixed accounting field "n" of a login request.
	DefaultN = "200"
	// DefaultType is the fixed accounting field "type" of a login request.
	DefaultType = "1"
)

// PasswordHash returns HMAC-MD5(challenge, password) as 32 lowercase hex characters.
func PasswordHash(password []byte, challenge string) string {
	h := hmac.New(md5.New, []byte(challenge))
	h.Write(password)
	return hex.EncodeToString(h.Sum(nil))
}

// ChecksumParams are the fields folded into a login checksum.
// N and Type default to DefaultN and DefaultType when empty.
type ChecksumParams struct {
	Challenge    string
	Username     string
	PasswordHash string
	AcID         string
	IP           string
	N            string
	Type         string
	AuthCode     string
}

// Checksum returns the SHA-1 of the fields, each preceded by the challenge,
// as 40 lowercase hex characters. The field order is fixed by the portal.
func Checksum(p ChecksumParams) string {
	n, typ := p.N, p.Type
	if n == "" {
		n = DefaultN
	}
	if typ == "" {
		typ = DefaultType
	}

	var b strings.Builder
	for _, field := range []string{p.Username, p.PasswordHash, p.AcID, p.IP, n, typ, p.AuthCode} {
		b.WriteString(p.Challenge)
		b.WriteString(field)
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
