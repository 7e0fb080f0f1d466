package sessionviewer

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hako/durafmt"
)

var LaunchTime = time.Now()

// BuildVersion is set at build time with -ldflags.
var BuildVersion = "dev"

type HealthCheck struct {
	store   SessionStore
	views   *ViewManager
	dirPath string
}

// NewHealthCheck reports on the store and open views. dirPath is checked for writability when set.
func NewHealthCheck(store SessionStore, views *ViewManager, dirPath string) *HealthCheck {
	return &HealthCheck{
		store:   store,
		views:   views,
		dirPath: dirPath,
	}
}

type HealthCheckResponse struct {
	OK      bool
	Version string

	OS            string
	NumCPU        int
	NumGoroutines int
	Uptime        string
	GoVersion     string

	NumSessions            int
	NumViews               int
	StoreError             string `json:",omitempty"`
	StoreDirectoryWritable bool
}

func (h *HealthCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthCheckResponse{
		OK:            true,
		OS:            runtime.GOOS + "/" + runtime.GOARCH,
		Version:       BuildVersion,
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
		Uptime:        durafmt.ParseShort(time.Since(LaunchTime)).String(),
		GoVersion:     runtime.Version(),
		NumViews:      h.views.Len(),
	}

	ids, err := h.store.ListSessionIDs()

	if err != nil {
		resp.OK = false
		resp.StoreError = err.Error()
	} else {
		resp.NumSessions = len(ids)
	}

	if h.dirPath != "" {
		resp.StoreDirectoryWritable = IsDirWriteable(h.dirPath) == nil
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func IsDirWriteable(dir string) error {
	file := filepath.Join(dir, ".test-write")

	if err := ioutil.WriteFile(file, []byte(""), 0600); err != nil {
		return err
	}

	return os.Remove(file)
}
