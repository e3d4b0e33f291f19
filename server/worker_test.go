package server

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestWorkerSerializesRequests(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Do(func() (any, error) {
				counter++
				return nil, nil
			})
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestWorkerReturnsValuesAndErrors(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	v, err := w.Do(func() (any, error) { return 7, nil })
	if err != nil || v.(int) != 7 {
		t.Errorf("Do = %v, %v; want 7", v, err)
	}

	boom := errors.New("boom")
	if _, err := w.Do(func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("Do err = %v, want boom", err)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	_, err := w.Do(func() (any, error) { panic("kaboom") })
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Do err = %v, want recovered panic", err)
	}
	if v, err := w.Do(func() (any, error) { return "alive", nil }); err != nil || v != "alive" {
		t.Errorf("worker unusable after panic: %v, %v", v, err)
	}
}

func TestWorkerStopped(t *testing.T) {
	w := NewWorker()
	w.Stop()
	w.Stop()
	if _, err := w.Do(func() (any, error) { return nil, nil }); !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop = %v, want ErrWorkerStopped", err)
	}
}
