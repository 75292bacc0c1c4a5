// Package cipher provides the encode/decode pair message bodies go through
// before they are stored. The Base64 codec is reversible obfuscation only and
// gives no confidentiality.
package cipher

import "encoding/base64"

// Codec turns plaintext into the token kept in Message.Body and back.
type Codec interface {
	Encode(plaintext string) string
	Decode(token string) string
}

// Base64 is the default codec.
type Base64 struct{}

// Encode returns the standard base64 encoding of plaintext.
func (Base64) Encode(plaintext string) string {
	return base64.StdEncoding.EncodeToString([]byte(plaintext))
}

// Decode reverses Encode. A token that is not valid base64 is returned as is,
// which keeps Decode total for bodies written before encoding was enabled.
func (Base64) Decode(token string) string {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return token
	}
	return string(b)
}

// Plain stores bodies unchanged.
type Plain struct{}

func (Plain) Encode(plaintext string) string { return plaintext }
func (Plain) Decode(token string) string     { return token }
