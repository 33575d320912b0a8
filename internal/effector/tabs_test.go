package effector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vinayprograms/taskforce/internal/orchestrator"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

// fakePage stands in for a browser page: it remembers what was loaded.
type fakePage struct {
	id     int
	url    string
	closed bool
}

func newFakeTabs() (*tabs[*fakePage], *int32) {
	var opened int32
	return newTabs(func() (*fakePage, error) {
		return &fakePage{id: int(atomic.AddInt32(&opened, 1))}, nil
	}, func(p *fakePage) error {
		p.closed = true
		return nil
	}), &opened
}

func TestTabs_ConcurrentOwnersDoNotShareAPage(t *testing.T) {
	pool, opened := newFakeTabs()

	// Both owners navigate before either reads, which is the interleaving
	// that leaks one task's page into another when a page is shared.
	var navigated sync.WaitGroup
	navigated.Add(2)
	got := make([]string, 2)
	var wg sync.WaitGroup
	for i, owner := range []string{"task-a", "task-b"} {
		wg.Add(1)
		go func(i int, owner string) {
			defer wg.Done()
			want := "https://" + owner + ".example"
			_, err := pool.use(owner, func(p *fakePage) Result {
				p.url = want
				navigated.Done()
				navigated.Wait()
				got[i] = p.url
				return OK(p.url)
			})
			if err != nil {
				t.Errorf("%s: %v", owner, err)
			}
		}(i, owner)
	}
	wg.Wait()

	if got[0] != "https://task-a.example" || got[1] != "https://task-b.example" {
		t.Errorf("pages leaked between owners: %v", got)
	}
	if n := atomic.LoadInt32(opened); n != 2 {
		t.Errorf("opened %d pages, want 2", n)
	}
}

func TestTabs_OneOwnerRunsOneCommandAtATime(t *testing.T) {
	pool, opened := newFakeTabs()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.use("task-a", func(p *fakePage) Result {
				n := atomic.AddInt32(&active, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				atomic.AddInt32(&active, -1)
				return OK("")
			})
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrent commands = %d, want 1", peak)
	}
	if n := atomic.LoadInt32(opened); n != 1 {
		t.Errorf("opened %d pages, want 1", n)
	}
}

func TestTabs_Release(t *testing.T) {
	pool, opened := newFakeTabs()

	var first *fakePage
	pool.use("task-a", func(p *fakePage) Result { first = p; return OK("") })
	pool.use("task-b", func(p *fakePage) Result { return OK("") })
	if pool.count() != 2 {
		t.Fatalf("count = %d, want 2", pool.count())
	}

	if err := pool.release("task-a"); err != nil {
		t.Fatal(err)
	}
	if !first.closed || pool.count() != 1 {
		t.Errorf("closed=%v count=%d", first.closed, pool.count())
	}
	if err := pool.release("unknown"); err != nil {
		t.Errorf("release unknown: %v", err)
	}

	// A released owner that comes back gets a fresh page.
	pool.use("task-a", func(p *fakePage) Result {
		if p == first {
			t.Error("released page reused")
		}
		return OK("")
	})
	if n := atomic.LoadInt32(opened); n != 3 {
		t.Errorf("opened %d pages, want 3", n)
	}

	pool.closeAll()
	if pool.count() != 0 {
		t.Errorf("count after closeAll = %d", pool.count())
	}
}

func TestTabs_OpenError(t *testing.T) {
	pool := newTabs(func() (*fakePage, error) {
		return nil, errors.New("no chrome")
	}, func(*fakePage) error { return nil })

	if _, err := pool.use("task-a", func(*fakePage) Result { return OK("") }); err == nil {
		t.Fatal("expected open error")
	}
	if pool.count() != 0 {
		t.Errorf("failed open left an entry")
	}
}

// releaser records the owners released through a dispatcher.
type releaser struct {
	mu     sync.Mutex
	owners []string
}

func (r *releaser) Execute(ctx context.Context, a protocol.Action) Result {
	owner, _ := orchestrator.ParentFrom(ctx)
	return OK(owner)
}

func (r *releaser) Release(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, owner)
}

func TestDispatcher_ReleaseOncePerEffector(t *testing.T) {
	r := &releaser{}
	d := NewDispatcher()
	d.Handle(protocol.KindThink, Func(Think))
	d.Handle(protocol.KindBrowser, r)
	d.Handle(protocol.KindSearchWeb, r)

	d.Release("task-a")
	if fmt.Sprint(r.owners) != "[task-a]" {
		t.Errorf("owners = %v", r.owners)
	}
}
