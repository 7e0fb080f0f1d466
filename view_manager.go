package sessionviewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

var ErrViewNotFound = errors.New("sessionviewer: view not found")

const (
	defaultViewIdleTimeout = 30 * time.Minute
	viewReapInterval       = time.Minute
)

// ViewManager opens views and looks them up by their rendezvous id.
type ViewManager struct {
	store SessionStore
	opts  ViewOptions

	IdleTimeout time.Duration

	mutex sync.RWMutex
	views map[string]*managedView
}

type managedView struct {
	view *View
	hub  *pageHub
}

func NewViewManager(store SessionStore, opts ViewOptions) *ViewManager {
	return &ViewManager{
		store:       store,
		opts:        opts,
		IdleTimeout: defaultViewIdleTimeout,
		views:       make(map[string]*managedView),
	}
}

// ParseCompareIDs splits a comma separated compare_id list, dropping blanks and duplicates.
func ParseCompareIDs(values ...string) []string {
	var out []string

	seen := make(map[string]bool)

	for _, value := range values {
		for _, id := range strings.Split(value, ",") {
			id = strings.TrimSpace(id)

			if id == "" || seen[id] {
				continue
			}

			seen[id] = true
			out = append(out, id)
		}
	}

	return out
}

// LoadComparisons loads the sessions concurrently, in the order given. A session which fails to
// load is reported in the error map and does not stop the others.
func (vm *ViewManager) LoadComparisons(ctx context.Context, ids []string) ([]*session.Session, map[string]error) {
	ids = ParseCompareIDs(ids...)

	loaded := make([]*session.Session, len(ids))
	failed := make([]error, len(ids))

	g, ctx := errgroup.WithContext(ctx)

	for i, id := range ids {
		i, id := i, id

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failed[i] = err
				return nil
			}

			s, err := vm.store.LoadSession(id)

			if err != nil {
				logrus.WithError(err).Warnf("Could not load comparison session %s", id)
				failed[i] = err
				return nil
			}

			loaded[i] = s

			return nil
		})
	}

	_ = g.Wait()

	var sessions []*session.Session

	errs := make(map[string]error)

	for i, id := range ids {
		if failed[i] != nil {
			errs[id] = failed[i]
			continue
		}

		sessions = append(sessions, loaded[i])
	}

	return sessions, errs
}

// Open loads a session and the sessions compared with it and opens a view of them.
func (vm *ViewManager) Open(ctx context.Context, id string, compareIDs []string, mode ViewMode) (*View, error) {
	primary, err := vm.store.LoadSession(id)

	if err != nil {
		return nil, err
	}

	var filtered []string

	for _, compareID := range ParseCompareIDs(compareIDs...) {
		if compareID != primary.ID {
			filtered = append(filtered, compareID)
		}
	}

	comparisons, errs := vm.LoadComparisons(ctx, filtered)

	hub := newPageHub()
	go hub.run()

	opts := vm.opts
	opts.Page = hub
	opts.Mode = mode
	opts.Loader = func(ctx context.Context, ids []string) ([]*session.Session, map[string]error) {
		return vm.LoadComparisons(ctx, ids)
	}

	view, err := NewView(primary, comparisons, errs, opts)

	if err != nil {
		hub.stop()
		return nil, err
	}

	vm.mutex.Lock()
	vm.views[view.ID] = &managedView{view: view, hub: hub}
	vm.mutex.Unlock()

	return view, nil
}

func (vm *ViewManager) get(id string) (*managedView, error) {
	vm.mutex.RLock()
	defer vm.mutex.RUnlock()

	mv, ok := vm.views[id]

	if !ok {
		return nil, ErrViewNotFound
	}

	return mv, nil
}

func (vm *ViewManager) Get(id string) (*View, error) {
	mv, err := vm.get(id)

	if err != nil {
		return nil, err
	}

	return mv.view, nil
}

func (vm *ViewManager) Len() int {
	vm.mutex.RLock()
	defer vm.mutex.RUnlock()

	return len(vm.views)
}

func (vm *ViewManager) Close(id string) error {
	vm.mutex.Lock()
	mv, ok := vm.views[id]
	delete(vm.views, id)
	vm.mutex.Unlock()

	if !ok {
		return ErrViewNotFound
	}

	mv.view.Close()
	mv.hub.stop()

	return nil
}

// CloseAll closes every open view.
func (vm *ViewManager) CloseAll() {
	vm.mutex.RLock()
	var ids []string

	for id := range vm.views {
		ids = append(ids, id)
	}
	vm.mutex.RUnlock()

	for _, id := range ids {
		_ = vm.Close(id)
	}
}

// Reap closes views which have had nothing connected for IdleTimeout.
func (vm *ViewManager) Reap() {
	vm.mutex.RLock()
	var candidates []*View

	for _, mv := range vm.views {
		candidates = append(candidates, mv.view)
	}
	vm.mutex.RUnlock()

	for _, view := range candidates {
		idle := false

		if !view.Do(func() { idle = view.Idle(vm.IdleTimeout) }) || idle {
			logrus.WithField("view_id", view.ID).Infof("Closing idle view")
			_ = vm.Close(view.ID)
		}
	}
}

// Run reaps idle views until ctx is done, then closes every view.
func (vm *ViewManager) Run(ctx context.Context) {
	ticker := time.NewTicker(viewReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			vm.Reap()
		case <-ctx.Done():
			vm.CloseAll()
			return
		}
	}
}
