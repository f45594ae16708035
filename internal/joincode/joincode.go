// Package joincode generates the short, human enterable codes used to join a session.
package joincode

import (
	"crypto/rand"
	"strings"
)

const (
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	Length   = 6
)

// bytes >= limit are rejected so every symbol is equally likely.
const limit = 256 - 256%len(Alphabet)

// Generate returns a code of Length symbols sampled uniformly from Alphabet.
func Generate() string {
	out := make([]byte, 0, Length)
	var buf [16]byte
	for len(out) < Length {
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand does not fail on supported platforms
			panic("joincode: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out)
}

// Normalize trims and upper-cases user input.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
