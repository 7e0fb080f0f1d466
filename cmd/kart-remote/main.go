package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer/pkg/laptime"
	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
	"github.com/JustaPenguin/kart-session-viewer/pkg/when"
)

var (
	serverAddr, host, mode string
)

func init() {
	flag.StringVar(&serverAddr, "server", "ws://localhost:8773", "the kart viewer to connect to")
	flag.StringVar(&host, "host", "", "the rendezvous id of the view to control")
	flag.StringVar(&mode, "mode", "pc", "the view mode, pc or tv")
	flag.Parse()
}

var (
	statusColour = color.New(color.FgYellow, color.Bold)
	lapColour    = color.New(color.FgCyan, color.Bold)
	timeColour   = color.New(color.FgGreen)
	errorColour  = color.New(color.FgRed, color.Bold)
)

const helpText = `commands: n (next lap), p (previous lap), <enter> (play/pause), s <time> (seek, e.g. s 1:23.4), q (quit)`

func main() {
	if host == "" {
		fmt.Println("you must specify the rendezvous id of a view with -host. run with help args to find out more")
		os.Exit(1)
	}

	u, err := url.Parse(serverAddr)

	if err != nil {
		logrus.Fatalf("invalid server address: %s", err)
	}

	u.Path = "/api/remote"
	u.RawQuery = url.Values{"host": {host}, "mode": {mode}}.Encode()

	c := &controller{
		url:    u.String(),
		events: make(chan func(), 64),
		done:   make(chan struct{}),
	}

	c.reconnector = &remote.Reconnector{
		Scheduler: when.Clock{},
		OnStatus:  c.status,
	}

	fmt.Println(helpText)

	go c.readInput()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		<-interrupt
		c.post(c.quit)
	}()

	c.post(c.connect)
	c.run()
}

// controller owns the connection. Everything runs on its event loop, including the
// reconnector's timers.
type controller struct {
	url         string
	reconnector *remote.Reconnector
	conn        *websocket.Conn
	generation  int
	closed      bool

	events chan func()
	done   chan struct{}
}

func (c *controller) run() {
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *controller) quit() {
	if c.closed {
		return
	}

	c.closed = true
	c.reconnector.Stop()

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}

	close(c.done)
}

func (c *controller) status(s remote.Status) {
	statusColour.Printf("[%s]\n", s)

	if s == remote.StatusFailed {
		errorColour.Println("could not reconnect to the viewer, giving up")
		c.quit()
	}
}

func (c *controller) connect() {
	c.reconnector.Connecting()

	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	go func() {
		conn, _, err := dialer.Dial(c.url, nil)

		c.post(func() {
			if err != nil {
				logrus.WithError(err).Debugf("could not connect to %s", c.url)
				c.reconnector.Disconnected(c.reconnect)
				return
			}

			c.generation++
			c.conn = conn
			c.reconnector.Connected()

			go c.readStats(conn, c.generation)
		})
	}()
}

func (c *controller) reconnect() {
	c.post(c.connect)
}

func (c *controller) readStats(conn *websocket.Conn, generation int) {
	for {
		_, data, err := conn.ReadMessage()

		if err != nil {
			c.post(func() {
				if generation != c.generation {
					return
				}

				conn.Close()
				c.conn = nil

				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.reconnector.Disconnected(c.reconnect)
				} else {
					c.reconnector.Errored(err, true, c.reconnect)
				}
			})

			return
		}

		var stats remote.Stats

		if err := json.Unmarshal(data, &stats); err != nil || stats.Type != remote.MessageStats {
			continue
		}

		c.post(func() {
			printStats(stats)
		})
	}
}

func printStats(stats remote.Stats) {
	state := "paused"

	if stats.IsPlaying {
		state = "playing"
	}

	lapColour.Printf("\rlap %d/%d", stats.Lap, stats.TotalLaps)
	fmt.Printf("  lap time %s  fastest %s  ", stats.Time, stats.FastestLap)
	timeColour.Printf("%s / %s", laptime.Format(stats.CurrentTime), laptime.Format(stats.Duration))
	fmt.Printf("  %s   ", state)
}

func (c *controller) send(command remote.Command) {
	if c.conn == nil {
		errorColour.Println("\nnot connected")
		return
	}

	if err := c.conn.WriteJSON(command); err != nil {
		logrus.WithError(err).Errorf("could not send command")
	}
}

// parseCommand turns a line of input into a command.
func parseCommand(line string) (remote.Command, bool) {
	fields := strings.Fields(line)

	if len(fields) == 0 {
		return remote.Command{Type: remote.MessagePlayPause}, true
	}

	switch strings.ToLower(fields[0]) {
	case "n", "next":
		return remote.Command{Type: remote.MessageNextLap}, true
	case "p", "prev":
		return remote.Command{Type: remote.MessagePrevLap}, true
	case "s", "seek":
		if len(fields) < 2 {
			return remote.Command{}, false
		}

		value := laptime.Value(laptime.Decode(fields[1]))

		return remote.Command{Type: remote.MessageSeek, Value: &value}, true
	default:
		return remote.Command{}, false
	}
}

func (c *controller) readInput() {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "q" || line == "quit" {
			break
		}

		command, ok := parseCommand(line)

		if !ok {
			fmt.Println(helpText)
			continue
		}

		c.post(func() {
			c.send(command)
		})
	}

	c.post(c.quit)
}
