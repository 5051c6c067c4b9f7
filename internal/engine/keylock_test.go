package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	var mu sync.Mutex
	counts := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"alpha", "beta"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				defer unlock()
				mu.Lock()
				counts[key]++
				mu.Unlock()
			}(key)
		}
	}
	wg.Wait()

	require.Equal(t, 50, counts["alpha"])
	require.Equal(t, 50, counts["beta"])
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("alpha")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("beta")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
