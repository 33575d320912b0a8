package effector

import (
	"errors"
	"sync"
)

// errTabClosed is returned for commands that arrive after their owner's
// page was released.
var errTabClosed = errors.New("browser page already closed")

// tab is one owner's page. mu serializes that owner's commands.
type tab[P any] struct {
	mu     sync.Mutex
	page   P
	closed bool
}

// tabs hands each owner its own page, opened on first use.
type tabs[P any] struct {
	open  func() (P, error)
	close func(P) error

	mu    sync.Mutex
	owned map[string]*tab[P]
}

func newTabs[P any](open func() (P, error), close func(P) error) *tabs[P] {
	return &tabs[P]{open: open, close: close, owned: make(map[string]*tab[P])}
}

func (t *tabs[P]) acquire(owner string) (*tab[P], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tb, ok := t.owned[owner]; ok {
		return tb, nil
	}
	page, err := t.open()
	if err != nil {
		return nil, err
	}
	tb := &tab[P]{page: page}
	t.owned[owner] = tb
	return tb, nil
}

// use runs fn with owner's page, opening it if needed.
func (t *tabs[P]) use(owner string, fn func(P) Result) (Result, error) {
	tb, err := t.acquire(owner)
	if err != nil {
		return Result{}, err
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.closed {
		return Result{}, errTabClosed
	}
	return fn(tb.page), nil
}

// release closes owner's page once its running command has finished.
func (t *tabs[P]) release(owner string) error {
	t.mu.Lock()
	tb, ok := t.owned[owner]
	delete(t.owned, owner)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.shut(tb)
}

func (t *tabs[P]) shut(tb *tab[P]) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.closed {
		return nil
	}
	tb.closed = true
	return t.close(tb.page)
}

// closeAll closes every open page.
func (t *tabs[P]) closeAll() {
	t.mu.Lock()
	owned := t.owned
	t.owned = make(map[string]*tab[P])
	t.mu.Unlock()
	for _, tb := range owned {
		_ = t.shut(tb)
	}
}

// count reports how many owners hold a page.
func (t *tabs[P]) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owned)
}
