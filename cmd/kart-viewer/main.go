package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	"github.com/JustaPenguin/kart-session-viewer"
	"github.com/JustaPenguin/kart-session-viewer/pkg/chart"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "config.yml", "the location of the config file")
	flag.Parse()
}

func main() {
	sessionviewer.InitLogging()

	config, err := sessionviewer.ReadConfig(configFile)

	if os.IsNotExist(err) {
		logrus.Infof("no config file found at %s, using defaults", configFile)
		config = sessionviewer.DefaultConfiguration()
	} else if err != nil {
		ServeHTTPWithError(sessionviewer.DefaultConfiguration().HTTP.Hostname, "read configuration file (config.yml)", err)
		return
	}

	if config.Monitoring.Enabled {
		sessionviewer.InitMonitoring(config.Monitoring)
	}

	if config.Chart.FontFolder != "" {
		chart.SetFontFolder(config.Chart.FontFolder)
	}

	store, err := config.Store.BuildStore()

	if err != nil {
		ServeHTTPWithError(config.HTTP.Hostname, "open session store", err)
		return
	}

	ctx, cfn := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cfn()

	if jsonStore, ok := store.(*sessionviewer.JSONStore); ok {
		if _, err := jsonStore.ListSummaries(); err != nil {
			logrus.WithError(err).Errorf("could not build session index")
		}

		if config.Store.Watch {
			go func() {
				if err := jsonStore.Watch(ctx.Done()); err != nil {
					logrus.WithError(err).Errorf("could not watch sessions directory")
				}
			}()
		}
	}

	resolver := sessionviewer.NewResolver(store, config)

	viewManager := resolver.ResolveViewManager()
	go viewManager.Run(ctx)

	listener, err := net.Listen("tcp", config.HTTP.Hostname)

	if err != nil {
		ServeHTTPWithError(config.HTTP.Hostname, "listen on hostname", err)
		return
	}

	srv := &http.Server{
		Handler: resolver.ResolveRouter(),
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)

		if closer, ok := store.(*sessionviewer.BoltStore); ok {
			_ = closer.Close()
		}
	}()

	logrus.Infof("starting kart session viewer on: %s", config.HTTP.Hostname)

	if config.HTTP.OpenBrowser {
		_ = browser.OpenURL("http://" + strings.Replace(config.HTTP.Hostname, "0.0.0.0", "127.0.0.1", 1))
	}

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		logrus.Fatal(err)
	}
}
