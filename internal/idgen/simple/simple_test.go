package simple

import (
	"context"
	"sync"
	"testing"
)

func TestGeneratorIsUniqueUnderConcurrency(t *testing.T) {
	g := New("b-")

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]struct{})
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			id, err := g.GetID(context.Background())
			if err != nil {
				t.Error(err)

				return
			}

			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("expected 50 unique ids, got %d", len(seen))
	}
}
