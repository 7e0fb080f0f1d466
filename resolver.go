package sessionviewer

import (
	"net/http"

	"github.com/JustaPenguin/kart-session-viewer/pkg/chart"
	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

// Resolver builds the service's components on first use.
type Resolver struct {
	store  SessionStore
	config *Configuration

	viewManager *ViewManager
	healthCheck *HealthCheck

	// handlers
	sessionsHandler *SessionsHandler
	viewsHandler    *ViewsHandler
}

func NewResolver(store SessionStore, config *Configuration) *Resolver {
	if config == nil {
		config = DefaultConfiguration()
	}

	return &Resolver{
		store:  store,
		config: config,
	}
}

func (r *Resolver) ResolveStore() SessionStore {
	return r.store
}

func (r *Resolver) chartSize() chart.Size {
	return chart.Size{Width: float64(r.config.Chart.Width), Height: float64(r.config.Chart.Height)}
}

func (r *Resolver) ResolveViewManager() *ViewManager {
	if r.viewManager != nil {
		return r.viewManager
	}

	r.viewManager = NewViewManager(r.store, ViewOptions{
		Scheduler:     when.Clock{},
		PollInterval:  r.config.Playback.PollInterval(),
		StatsInterval: r.config.Playback.StatsInterval(),
		ChartSize:     r.chartSize(),
		BaseURL:       r.config.HTTP.BaseURL,
	})

	return r.viewManager
}

func (r *Resolver) resolveHealthCheck() *HealthCheck {
	if r.healthCheck != nil {
		return r.healthCheck
	}

	var dir string

	if js, ok := r.store.(*JSONStore); ok {
		dir = js.Dir()
	}

	r.healthCheck = NewHealthCheck(r.store, r.ResolveViewManager(), dir)

	return r.healthCheck
}

func (r *Resolver) resolveSessionsHandler() *SessionsHandler {
	if r.sessionsHandler != nil {
		return r.sessionsHandler
	}

	r.sessionsHandler = NewSessionsHandler(r.store, r.chartSize(), r.config.HTTP.BaseURL)

	return r.sessionsHandler
}

func (r *Resolver) resolveViewsHandler() *ViewsHandler {
	if r.viewsHandler != nil {
		return r.viewsHandler
	}

	r.viewsHandler = NewViewsHandler(r.ResolveViewManager())

	return r.viewsHandler
}

func (r *Resolver) ResolveRouter() http.Handler {
	return Router(
		r.config.HTTP.StaticPath,
		r.resolveSessionsHandler(),
		r.resolveViewsHandler(),
		r.resolveHealthCheck(),
	)
}
