package helpers

import (
	"math/rand"
	"time"
)

// RandUnix is for shuffling test cases, seed differs per run.
func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
