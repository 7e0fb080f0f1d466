package main

import (
	"flag"
	"fmt"
	"os"

	"go.etcd.io/bbolt"

	"github.com/JustaPenguin/kart-session-viewer"
)

var (
	boltPath, jsonPath string
	toBolt             bool
)

func init() {
	flag.StringVar(&boltPath, "bolt", "", "the bolt store file")
	flag.StringVar(&jsonPath, "json", "", "the json sessions directory")
	flag.BoolVar(&toBolt, "to-bolt", false, "convert from json to bolt rather than bolt to json")
	flag.Parse()
}

func main() {
	if boltPath == "" || jsonPath == "" {
		fmt.Println("you must specify a store. run with help args to find out more")
		os.Exit(1)
	}

	bdb, err := bbolt.Open(boltPath, 0644, nil)

	if err != nil {
		panic(err)
	}

	defer bdb.Close()

	var from, to sessionviewer.SessionStore = sessionviewer.NewBoltStore(bdb), sessionviewer.NewJSONStore(jsonPath)

	if toBolt {
		from, to = to, from
	}

	n, err := convertStore(from, to)

	if err != nil {
		panic(err)
	}

	fmt.Printf("converted %d sessions\n", n)
}

func convertStore(from, to sessionviewer.SessionStore) (int, error) {
	ids, err := from.ListSessionIDs()

	if err != nil {
		return 0, err
	}

	for i, id := range ids {
		s, err := from.LoadSession(id)

		if err != nil {
			return i, err
		}

		if err := to.UpsertSession(s); err != nil {
			return i, err
		}
	}

	return len(ids), nil
}
