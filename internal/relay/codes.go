package relay

import "math/rand/v2"

// Room codes are 4 characters from an alphabet that excludes the visually
// confusable I, O, 0 and 1, so players can read a code off one screen and
// type it on another.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 4
)

// randomCode returns a candidate room code. Uniqueness against live rooms is
// the Coordinator's responsibility; it regenerates on collision.
func randomCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(buf)
}
