package support

import (
	"crypto/rand"
	"fmt"
)

// referenceAlphabet leaves out characters that are easy to misread over the phone.
const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReference returns a code like VH-7KQ2M9XA.
func NewReference() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ticket reference: %w", err)
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return "VH-" + string(buf), nil
}
