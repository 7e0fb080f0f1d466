package sessionviewer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
	"gopkg.in/yaml.v2"

	"github.com/JustaPenguin/kart-session-viewer/pkg/playback"
	"github.com/JustaPenguin/kart-session-viewer/pkg/remote"
)

const (
	defaultHostname    = "0.0.0.0:8773"
	defaultBaseURL     = "http://localhost:8773"
	defaultStaticPath  = "./static"
	defaultStorePath   = "./sessions"
	defaultChartWidth  = 960
	defaultChartHeight = 420
)

type Configuration struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Store      StoreConfig      `yaml:"store"`
	Chart      ChartConfig      `yaml:"chart"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type HTTPConfig struct {
	Hostname    string `yaml:"hostname"`
	BaseURL     string `yaml:"base_url"`
	StaticPath  string `yaml:"static_path"`
	OpenBrowser bool   `yaml:"open_browser"`
}

type StoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`

	// Watch regenerates the session index whenever a session file in Path changes. json store only.
	Watch bool `yaml:"watch"`
}

type ChartConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FontFolder string `yaml:"font_folder"`
}

type PlaybackConfig struct {
	PollIntervalMs  int `yaml:"poll_interval_ms"`
	StatsIntervalMs int `yaml:"stats_interval_ms"`
}

func (p PlaybackConfig) PollInterval() time.Duration {
	if p.PollIntervalMs <= 0 {
		return playback.DefaultPollInterval
	}

	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

func (p PlaybackConfig) StatsInterval() time.Duration {
	if p.StatsIntervalMs <= 0 {
		return remote.StatsInterval
	}

	return time.Duration(p.StatsIntervalMs) * time.Millisecond
}

type MonitoringConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SentryDSN string `yaml:"sentry_dsn"`
}

func (c *Configuration) applyDefaults() {
	if c.HTTP.Hostname == "" {
		c.HTTP.Hostname = defaultHostname
	}

	if c.HTTP.BaseURL == "" {
		c.HTTP.BaseURL = defaultBaseURL
	}

	if c.HTTP.StaticPath == "" {
		c.HTTP.StaticPath = defaultStaticPath
	}

	if c.Store.Type == "" {
		c.Store.Type = storeTypeJSON
	}

	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}

	if c.Chart.Width <= 0 {
		c.Chart.Width = defaultChartWidth
	}

	if c.Chart.Height <= 0 {
		c.Chart.Height = defaultChartHeight
	}
}

// DefaultConfiguration is used when no config file is present.
func DefaultConfiguration() *Configuration {
	conf := &Configuration{}
	conf.applyDefaults()

	return conf
}

func ReadConfig(location string) (*Configuration, error) {
	f, err := os.Open(location)

	if err != nil {
		return nil, err
	}

	defer f.Close()

	conf := &Configuration{}

	if err := yaml.NewDecoder(f).Decode(conf); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "could not parse config file %s", location)
	}

	conf.applyDefaults()

	if conf.Monitoring.Enabled && conf.Monitoring.SentryDSN == "" {
		logrus.Infof("Monitoring is enabled without a sentry_dsn, panics will only be logged")
	}

	return conf, nil
}

const (
	storeTypeJSON   = "json"
	storeTypeBoltDB = "boltdb"

	boltFileName = "sessions.db"
)

func (s *StoreConfig) BuildStore() (SessionStore, error) {
	switch s.Type {
	case storeTypeBoltDB:
		path := s.Path

		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, boltFileName)
		}

		bbdb, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 5 * time.Second})

		if err != nil {
			return nil, errors.Wrapf(err, "could not open bolt store at %s", path)
		}

		return NewBoltStore(bbdb), nil
	case storeTypeJSON:
		return NewJSONStore(s.Path), nil
	default:
		return nil, fmt.Errorf("invalid store type (%s), must be either boltdb/json", s.Type)
	}
}
