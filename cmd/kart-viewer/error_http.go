package main

import (
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"
)

type HTTPErrorHandler struct {
	Cause string
	Error error
}

const httpErrorMessage = `!!! An Error Occurred !!!
-------------------------

Failed to start the kart session viewer.

Your configuration file is probably incorrect, or the sessions directory can't be read.
Check that the store path and hostname in config.yml are set correctly.

      Error Details
-------------------------

The error occurred attempting to: %s
The error more specifically is: %s

-------------------------
`

func (h *HTTPErrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, httpErrorMessage, h.Cause, h.Error)
}

func (h *HTTPErrorHandler) String() string {
	return fmt.Sprintf(httpErrorMessage, h.Cause, h.Error)
}

// ServeHTTPWithError serves a page describing a startup error, so that people who started the
// viewer by double clicking it can see what went wrong.
func ServeHTTPWithError(addr string, cause string, err error) {
	h := &HTTPErrorHandler{Cause: cause, Error: err}

	fmt.Println(h.String())

	listener, err := net.Listen("tcp", addr)

	if err != nil {
		return
	}

	if runtime.GOOS == "windows" {
		_ = browser.OpenURL("http://" + strings.Replace(addr, "0.0.0.0", "127.0.0.1", 1))
	}

	if err := http.Serve(listener, h); err != nil {
		logrus.Fatal(err)
	}
}
