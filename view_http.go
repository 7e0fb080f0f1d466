package sessionviewer

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024

	// maxPageMessageSize bounds a single message read from a page or remote.
	maxPageMessageSize = 64 * 1024
)

type ViewsHandler struct {
	manager *ViewManager
}

func NewViewsHandler(manager *ViewManager) *ViewsHandler {
	return &ViewsHandler{
		manager: manager,
	}
}

type createViewRequest struct {
	ID         string   `json:"id"`
	CompareID  string   `json:"compare_id"`
	CompareIDs []string `json:"compare_ids"`
	Mode       ViewMode `json:"mode"`
}

type createViewResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	RemoteURL string    `json:"remoteUrl"`
	State     ViewState `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// sessionErrorStatus maps a session load error to its response status.
func sessionErrorStatus(err error) int {
	switch err {
	case ErrSessionNotFound:
		return http.StatusNotFound
	case ErrInvalidSessionID:
		return http.StatusBadRequest
	case session.ErrNoValidLaps:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (vh *ViewsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createViewRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logrus.WithError(err).Debugf("could not decode view request")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	compareIDs := ParseCompareIDs(append([]string{req.CompareID}, req.CompareIDs...)...)

	view, err := vh.manager.Open(r.Context(), req.ID, compareIDs, req.Mode)

	if err != nil {
		status := sessionErrorStatus(err)

		if status == http.StatusInternalServerError {
			logrus.WithError(err).Errorf("could not open view of session: %s", req.ID)
		}

		http.Error(w, http.StatusText(status), status)
		return
	}

	var resp createViewResponse

	if !view.Do(func() {
		resp = createViewResponse{
			ID:        view.ID,
			URL:       view.URL(),
			RemoteURL: view.RemoteURL(),
			State:     view.State(),
		}
	}) {
		http.Error(w, http.StatusText(http.StatusGone), http.StatusGone)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (vh *ViewsHandler) state(w http.ResponseWriter, r *http.Request) {
	view, err := vh.manager.Get(chi.URLParam(r, "viewID"))

	if err != nil {
		http.NotFound(w, r)
		return
	}

	var state ViewState

	if !view.Do(func() { state = view.State() }) {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (vh *ViewsHandler) qr(w http.ResponseWriter, r *http.Request) {
	view, err := vh.manager.Get(chi.URLParam(r, "viewID"))

	if err != nil {
		http.NotFound(w, r)
		return
	}

	size := defaultQRSize

	if s, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil {
		size = s
	}

	if size < minQRSize {
		size = minQRSize
	} else if size > maxQRSize {
		size = maxQRSize
	}

	var remoteURL string

	if !view.Do(func() { remoteURL = view.RemoteURL() }) {
		http.NotFound(w, r)
		return
	}

	png, err := qrcode.Encode(remoteURL, qrcode.Medium, size)

	if err != nil {
		logrus.WithError(err).Errorf("could not encode remote url qr code")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(png)
}

func (vh *ViewsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := vh.manager.Close(chi.URLParam(r, "viewID")); err != nil {
		http.NotFound(w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// page is the websocket a hosting page connects to. Player reports, pointer events and control
// buttons come in, and everything the page should draw goes out.
func (vh *ViewsHandler) page(w http.ResponseWriter, r *http.Request) {
	mv, err := vh.manager.get(chi.URLParam(r, "viewID"))

	if err != nil {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		logrus.WithError(err).Errorf("Unable to upgrade connection")
		return
	}

	client := newWebsocketClient(conn)
	go client.writePump()

	view := mv.view
	added := false

	// INIT is queued before the client joins the hub, so it is always the first message
	if !view.Do(func() {
		view.PageConnected()
		_ = client.push(PageMessage{Type: PageMessageInit, Data: view.State()})
		added = mv.hub.add(client)
	}) || !added {
		client.close()
		return
	}

	logrus.WithField("view_id", view.ID).Debugf("Page %s connected", client.ID())

	defer func() {
		mv.hub.remove(client)
		view.Post(view.PageDisconnected)

		logrus.WithField("view_id", view.ID).Debugf("Page %s disconnected", client.ID())
	}()

	readMessages(conn, func(data []byte) {
		var e PageEvent

		if err := json.Unmarshal(data, &e); err != nil {
			logrus.WithError(err).Debugf("Ignoring malformed page event")
			return
		}

		view.Post(func() {
			view.HandlePageEvent(e)
		})
	})
}

// remote is the websocket controllers connect to, addressed by the view's rendezvous id.
func (vh *ViewsHandler) remote(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")

	view, err := vh.manager.Get(host)

	if err != nil {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)

	if err != nil {
		logrus.WithError(err).Errorf("Unable to upgrade connection")
		return
	}

	client := newWebsocketClient(conn)
	go client.writePump()

	if !view.Do(func() { view.ConnectRemote(client) }) {
		client.close()
		return
	}

	remotesConnected.Inc()

	logrus.WithField("view_id", view.ID).WithField("mode", r.URL.Query().Get("mode")).Infof("Remote %s connected", client.ID())

	defer func() {
		remotesConnected.Dec()
		view.Post(func() {
			view.DisconnectRemote(client.ID())
		})
		client.close()
	}()

	readMessages(conn, func(data []byte) {
		command, err := remote.ParseCommand(data)

		if err != nil {
			logrus.WithError(err).Debugf("Ignoring malformed remote command")
			return
		}

		view.Post(func() {
			view.HandleRemoteCommand(command)
		})
	})
}

// readMessages calls fn with every message read from conn until the connection closes.
func readMessages(conn *websocket.Conn, fn func(data []byte)) {
	conn.SetReadLimit(maxPageMessageSize)

	for {
		_, data, err := conn.ReadMessage()

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debugf("websocket closed unexpectedly")
			}

			return
		}

		fn(data)
	}
}
