package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var idCounter uint64

// GenerateRunID generates a run ID with a timestamp prefix, e.g.
// "opt-20260823-104501-9f3c21aa".
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		count := atomic.AddUint64(&idCounter, 1)
		return fmt.Sprintf("opt-%s-%x", timestamp, count)
	}
	return fmt.Sprintf("opt-%s-%s", timestamp, hex.EncodeToString(b))
}
