package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bera-tech-ai/gramX/internal/domain"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *fakeSource) Summaries(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return []domain.ConversationSummary{{PartnerID: "partner-of-" + userID}}, nil
}

func TestSummariesPassthrough(t *testing.T) {
	src := &fakeSource{}
	b := NewBuilder(src)

	got, err := b.Summaries(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(got) != 1 || got[0].PartnerID != "partner-of-alice" {
		t.Errorf("unexpected summaries: %+v", got)
	}
}

func TestSummariesError(t *testing.T) {
	src := &fakeSource{err: domain.ErrPersistence}
	b := NewBuilder(src)

	if _, err := b.Summaries(context.Background(), "alice"); !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestConcurrentCallsCollapse(t *testing.T) {
	src := &fakeSource{delay: 20 * time.Millisecond}
	b := NewBuilder(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Summaries(context.Background(), "alice")
		}()
	}
	wg.Wait()

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	if calls >= 8 {
		t.Errorf("expected concurrent calls to collapse, saw %d store queries", calls)
	}
}

func TestSequentialCallsAreNotCached(t *testing.T) {
	src := &fakeSource{}
	b := NewBuilder(src)
	ctx := context.Background()

	b.Summaries(ctx, "alice")
	b.Summaries(ctx, "alice")

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	if calls != 2 {
		t.Errorf("sequential calls must each hit the store, saw %d queries", calls)
	}
}
