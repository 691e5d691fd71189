package lobby

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/wfunc/lobbyserver/models"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// NewDraw returns a uniform draw over the pickable numbers. The outcome does
// not depend on what anyone picked.
func NewDraw(seed int64) func() int {
	r := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return models.MinPick + r.Intn(models.MaxPick-models.MinPick+1)
	}
}
