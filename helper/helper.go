package helper

import (
	"math/rand"
	"sync"
	"time"
)

const symbols = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// PeerIDPrefix identifies this client in Azureus-style peer ids.
const PeerIDPrefix = "-GB0001-"

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// GeneratePeerID returns a 20 byte peer id: the client prefix followed by
// random alphanumeric characters.
func GeneratePeerID() [20]byte {
	peerID := [20]byte{}
	n := copy(peerID[:], PeerIDPrefix)
	copy(peerID[n:], GenerateRandomID(len(peerID)-n))
	return peerID
}

// GenerateRandomID returns size random alphanumeric bytes.
func GenerateRandomID(size int) []byte {
	mu.Lock()
	defer mu.Unlock()

	id := make([]byte, size)
	for i := 0; i < size; i++ {
		id[i] = symbols[rng.Intn(len(symbols))]
	}
	return id
}
