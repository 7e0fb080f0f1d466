package sessionviewer

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-http-utils/etag"
	"github.com/sirupsen/logrus"
)

var (
	logMultiWriter io.Writer = os.Stdout

	Debug = os.Getenv("DEBUG") == "true"
)

const logFileName = "kart-viewer.log"

func InitLogging() {
	if !Debug {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)

	if err == nil {
		logMultiWriter = io.MultiWriter(os.Stdout, logFile)
	} else {
		logrus.WithError(err).Errorf("Could not create kart viewer log file")
		logMultiWriter = os.Stdout
	}

	logrus.SetOutput(logMultiWriter)
}

func Router(
	staticPath string,
	sessionsHandler *SessionsHandler,
	viewsHandler *ViewsHandler,
	healthCheck *HealthCheck,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(panicHandler)

	r.Handle("/metrics", prometheusMonitoringHandler())
	r.Handle("/healthcheck.json", healthCheck)

	if Debug {
		r.Mount("/debug/", middleware.Profiler())
	}

	// sessions
	r.Get("/api/sessions", sessionsHandler.list)
	r.Post("/api/sessions", sessionsHandler.submit)
	r.Get("/api/sessions/{id}", etag.Handler(http.HandlerFunc(sessionsHandler.view), false).ServeHTTP)
	r.Delete("/api/sessions/{id}", sessionsHandler.delete)
	r.Get("/api/sessions/{id}/chart.svg", sessionsHandler.chartSVG)
	r.Get("/api/sessions/{id}/chart.png", sessionsHandler.chartPNG)

	// views
	r.Post("/api/views", viewsHandler.create)
	r.Get("/api/views/{viewID}", viewsHandler.state)
	r.Delete("/api/views/{viewID}", viewsHandler.delete)
	r.Get("/api/views/{viewID}/qr.png", viewsHandler.qr)
	r.Get("/api/views/{viewID}/page", viewsHandler.page)
	r.Get("/api/remote", viewsHandler.remote)

	if staticPath != "" {
		r.Get("/session", staticPage(staticPath, "session.html"))
		r.Get("/remote", staticPage(staticPath, "remote.html"))

		FileServer(r, "/", http.Dir(staticPath))
	}

	return prometheusMonitoringWrapper(r)
}

// staticPage serves a single file from the static directory, whatever the query string.
func staticPage(root, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(root, name))
	}
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, fs.ServeHTTP)
}
