package sessionviewer

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	pingPeriod = 10 * time.Second

	clientBuffer = 256
)

var (
	errClientClosed  = errors.New("sessionviewer: websocket client closed")
	errClientBacklog = errors.New("sessionviewer: websocket client is not keeping up")
	errHubStopped    = errors.New("sessionviewer: page hub stopped")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// websocketClient writes queued messages to one connection.
type websocketClient struct {
	id   string
	conn *websocket.Conn

	receive   chan interface{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newWebsocketClient(conn *websocket.Conn) *websocketClient {
	return &websocketClient{
		id:      uuid.New().String(),
		conn:    conn,
		receive: make(chan interface{}, clientBuffer),
		closed:  make(chan struct{}),
	}
}

// ID implements remote.Channel.
func (c *websocketClient) ID() string {
	return c.id
}

// Send implements remote.Channel.
func (c *websocketClient) Send(stats remote.Stats) error {
	return c.push(stats)
}

func (c *websocketClient) push(message interface{}) error {
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}

	select {
	case c.receive <- message:
		return nil
	case <-c.closed:
		return errClientClosed
	default:
		return errClientBacklog
	}
}

func (c *websocketClient) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if rvr := recover(); rvr != nil {
			logrus.WithField("panic", rvr).Errorf("Recovered from panic")
		}
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.receive:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteJSON(message)

			if err != nil && !strings.HasSuffix(err.Error(), "write: broken pipe") {
				logrus.WithError(err).Errorf("Could not send websocket message")
				return
			} else if err != nil {
				return
			}
		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pageHub fans a view's messages out to every page hosting it.
type pageHub struct {
	clients    map[*websocketClient]bool
	broadcast  chan PageMessage
	register   chan *websocketClient
	unregister chan *websocketClient

	quit     chan struct{}
	stopOnce sync.Once
}

func newPageHub() *pageHub {
	return &pageHub{
		clients:    make(map[*websocketClient]bool),
		broadcast:  make(chan PageMessage, 1000),
		register:   make(chan *websocketClient),
		unregister: make(chan *websocketClient),
		quit:       make(chan struct{}),
	}
}

// Send implements PageChannel.
func (h *pageHub) Send(message PageMessage) error {
	select {
	case h.broadcast <- message:
		return nil
	case <-h.quit:
		return errHubStopped
	}
}

func (h *pageHub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				client.close()
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.push(message); err != nil {
					delete(h.clients, client)
					client.close()
				}
			}
		case <-h.quit:
			for client := range h.clients {
				client.close()
			}

			return
		}
	}
}

func (h *pageHub) add(client *websocketClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

func (h *pageHub) remove(client *websocketClient) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

func (h *pageHub) stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}
