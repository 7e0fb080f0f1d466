package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/JustaPenguin/kart-session-viewer"
	"github.com/JustaPenguin/kart-session-viewer/pkg/session"
)

var (
	sessionsDir string
	verbose     bool
)

func init() {
	flag.StringVar(&sessionsDir, "dir", "./sessions", "the sessions directory to index")
	flag.BoolVar(&verbose, "v", false, "print every indexed session")
	flag.Parse()
}

func main() {
	store := sessionviewer.NewJSONStore(sessionsDir)

	ids, err := store.ListSessionIDs()

	if err != nil {
		color.Red("could not list sessions in %s: %s", sessionsDir, err)
		os.Exit(1)
	}

	var invalid int

	for _, id := range ids {
		s, err := store.LoadSession(id)

		if err != nil {
			color.Red("  %s: %s", id, err)
			invalid++
			continue
		}

		if _, err := s.Validated(); err == session.ErrNoValidLaps {
			color.Yellow("  %s: no valid laps, it will be listed but can't be viewed", id)
		}
	}

	index, err := store.RebuildIndex()

	if err != nil {
		color.Red("could not write session index: %s", err)
		os.Exit(1)
	}

	if verbose {
		for _, summary := range index.Sessions {
			fmt.Printf("  %-36s %-20s %-24s %s\n", summary.ID, summary.Driver, summary.TrackName(), summary.FastestLap)
		}
	}

	color.Green("indexed %d sessions (%d could not be read)", len(index.Sessions), invalid)
}
