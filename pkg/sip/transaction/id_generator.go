package transaction

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// idCounter is a process-wide counter mixed into generated IDs.
var idCounter uint64

// GenerateTransactionID returns a unique transaction ID combining a
// timestamp, a monotonic counter, and random bytes.
func GenerateTransactionID() string {
	timestamp := time.Now().UnixNano()
	counter := atomic.AddUint64(&idCounter, 1)

	randomBytes := make([]byte, 4)
	rand.Read(randomBytes)
	
	return fmt.Sprintf("%x-%d-%s", timestamp, counter, hex.EncodeToString(randomBytes))
}