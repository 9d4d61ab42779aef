// Command iqrfgd is the gateway daemon entry point: it loads
// configuration, opens the persistence store, wires the exclusive-access
// coordinator, driver registry, enumerator, sensor reader and message
// dispatcher together, and runs until told to stop.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iqrf/iqrf-gateway-daemon-sub000/config"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/dispatch"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/enum"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/radio"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/registry"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/sensorfrc"
	"github.com/iqrf/iqrf-gateway-daemon-sub000/store"
)

func main() {
	configPath := flag.String("config", "/etc/iqrfgd/config.json", "path to the daemon configuration document")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	entry := logrus.NewEntry(log)

	if err := run(*configPath, entry); err != nil {
		entry.WithError(err).Fatal("daemon exited with error")
	}
}

func run(configPath string, log *logrus.Entry) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Open(ctx, cfg.Store.DatabasePath, log.WithField("component", "store"))
	if err != nil {
		return err
	}
	defer s.Close()

	coord := radio.New(unattachedTransport{}, log.WithField("component", "radio"))
	reg := registry.New(nil, log.WithField("component", "registry"))

	enumerator := enum.New(s, coord, reg, emptyCatalog{}, cfg.Enumerator, log.WithField("component", "enum"))
	reader := sensorfrc.New(s, coord, cfg.SensorReader, log.WithField("component", "sensorfrc"))
	dispatcher := dispatch.New(s, coord, reg, enumerator, cfg.Enumerator, log.WithField("component", "dispatch"))
	asyncConsumer := dispatch.NewAsyncConsumer(dispatcher, log.WithField("component", "async"))

	go asyncConsumer.Run(ctx, &coord.Async)

	if cfg.Enumerator.EnumerateOnLaunch {
		if err := enumerator.Invoke(ctx, enum.Params{FullReenumerate: false, WithStandards: true}); err != nil {
			log.WithError(err).Warn("enumerate-on-launch failed to start")
		}
	}

	if cfg.SensorReader.AutoRun {
		reader.Start(ctx)
	}
	defer reader.Stop()

	log.Info("daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	return nil
}
