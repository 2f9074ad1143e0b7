// Package codec implements the SRBX1 encoding the portal expects in the
// login "info" parameter: a TEA-family block mix keyed by the challenge,
// followed by base64 over a custom alphabet.
//
// The transform carries no cryptographic guarantee. It exists only to be
// bit-for-bit identical to the portal's own implementation.
package codec

import (
	"encoding/base64"

	srunerr "github.com/atinyakov/srun-login/internal/errors"
)

const (
	// Tag prefixes every encoded auth blob.
	Tag = "{SRBX1}"

	// Alphabet is the portal's base64 alphabet.
	Alphabet = "LVoJPiCN2R8G90yg+hmFHuacZ1OWMnrsSTXkYpUq/3dlbfKwv6xztjI7DeBE45QA"

	delta = uint32(0x9E3779B9)
)

var encoding = base64.NewEncoding(Alphabet)

// Options tunes the unpack step that runs after mixing.
type Options struct {
	// TrimToLength cuts the unpacked bytes to the length stored in the last word.
	// The portal's reference client does not trim.
	TrimToLength bool
}

// EncodeAuthBlob encodes plaintext with the challenge as key material and
// returns "{SRBX1}" followed by the custom base64 text. Empty plaintext
// yields an empty string.
func EncodeAuthBlob(plaintext []byte, challenge string) string {
	s, _ := EncodeAuthBlobWith(plaintext, challenge, Options{})
	return s
}

// EncodeAuthBlobWith is EncodeAuthBlob with explicit unpack options.
// It only fails when TrimToLength is set and the mixed length word is out of range.
func EncodeAuthBlobWith(plaintext []byte, challenge string, opts Options) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}
	raw, err := XEncode(plaintext, []byte(challenge), opts)
	if err != nil {
		return "", err
	}
	return Tag + encoding.EncodeToString(raw), nil
}

// XEncode runs pack, mix and unpack and returns the raw mixed bytes.
func XEncode(plaintext, key []byte, opts Options) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	v := Pack(plaintext, true)
	k := Pack(key, false)
	if len(k) < 4 {
		k = append(k, make([]uint32, 4-len(k))...)
	}
	Mix(v, k)
	return Unpack(v, opts.TrimToLength)
}

// Mix runs the keyed block mix over v in place. k must hold at least four words.
func Mix(v, k []uint32) {
	if len(v) == 0 {
		return
	}
	n := uint32(len(v) - 1)
	z := v[n]
	var y, d uint32
	for q := 6 + 52/(n+1); q > 0; q-- {
		d += delta
		e := (d >> 2) & 3
		var p uint32
		for p = 0; p < n; p++ {
			y = v[p+1]
			v[p] += mx(y, z, d, k[(p&3)^e])
			z = v[p]
		}
		y = v[0]
		v[n] += mx(y, z, d, k[(p&3)^e])
		z = v[n]
	}
}

func mx(y, z, d, k uint32) uint32 {
	return (z>>5 ^ y<<2) + (y>>3 ^ z<<4 ^ (d ^ y)) + (k ^ z)
}

// Pack splits b into little-endian words, zero-padding the last one.
// With withLength set, a final word holding len(b) is appended.
func Pack(b []byte, withLength bool) []uint32 {
	words := (len(b) + 3) / 4
	size := words
	if withLength {
		size++
	}
	v := make([]uint32, size)
	for i, c := range b {
		v[i>>2] |= uint32(c) << ((i & 3) * 8)
	}
	if withLength {
		v[words] = uint32(len(b))
	}
	return v
}

// Unpack turns words back into bytes. With trim set, the last word is read
// as the original byte length and the result is cut to it.
func Unpack(v []uint32, trim bool) ([]byte, error) {
	out := make([]byte, 0, len(v)*4)
	for _, w := range v {
		out = append(out, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
	}
	if !trim {
		return out, nil
	}
	if len(v) == 0 {
		return nil, srunerr.ErrLengthOutOfRange
	}
	c := (len(v) - 1) * 4
	m := int(v[len(v)-1])
	if m < c-3 || m > c {
		return nil, srunerr.ErrLengthOutOfRange
	}
	return out[:m], nil
}
