package app

import (
	"math/rand"
	"time"
)

// codeAlphabet omits 0/O and 1/I since codes are typed by hand from a
// projector screen.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	defaultCodeLength = 6
	minCodeLength     = 4
	maxCodeLength     = 6
)

type codeGenerator struct {
	length int
	rnd    *rand.Rand
}

func newCodeGenerator(length int) *codeGenerator {
	if length < minCodeLength || length > maxCodeLength {
		length = defaultCodeLength
	}
	return &codeGenerator{
		length: length,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *codeGenerator) next() string {
	buf := make([]byte, g.length)
	for i := range buf {
		buf[i] = codeAlphabet[g.rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
