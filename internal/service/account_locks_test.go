package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocks_SerialisesSameAccount(t *testing.T) {
	locks := newAccountLocks()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("acc-1")
			defer unlock()

			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, locks.locks)
}

func TestAccountLocks_DifferentAccountsDoNotBlock(t *testing.T) {
	locks := newAccountLocks()

	unlockA := locks.Lock("acc-1")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("acc-2")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different account blocked")
	}
}
