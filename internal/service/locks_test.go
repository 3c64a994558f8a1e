package service

import (
	"sync"
	"testing"
)

func TestJobLocks_SerializesSameKey(t *testing.T) {
	locks := NewJobLocks()

	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			locks.Lock("job-1")
			defer locks.Unlock("job-1")
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("Ожидалось %d инкрементов, получено %d", workers, counter)
	}
}

func TestJobLocks_IndependentKeys(t *testing.T) {
	locks := NewJobLocks()

	locks.Lock("job-1")

	// Другой ключ не должен блокироваться
	done := make(chan struct{})
	go func() {
		locks.Lock("job-2")
		locks.Unlock("job-2")
		close(done)
	}()

	<-done
	locks.Unlock("job-1")
}

func TestJobLocks_ReleasesEntries(t *testing.T) {
	locks := NewJobLocks()

	locks.Lock("job-1")
	locks.Unlock("job-1")

	if n := locks.Len(); n != 0 {
		t.Errorf("После Unlock карта должна быть пустой, в ней %d записей", n)
	}
}
