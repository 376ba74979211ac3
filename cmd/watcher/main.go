// Package main: watcher service.
//
// The watcher scans the mined blocks of every ethereum-like network configured and publishes a deposit event when a
// deposit wallet receives a transaction. It must share the database with the api service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/config"
	"github.com/tarancss/luxhedge/lib/logging"
	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/msg/broker"
	"github.com/tarancss/luxhedge/lib/store/db"
	"github.com/tarancss/luxhedge/watcher"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from a json or yaml file")
	monitor := flag.Bool("m", false, "flag to serve Prometheus metrics at "+metrics.Addr)
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log := logging.Must(conf.LogLevel, conf.LogJSON).With(zap.String("service", "watcher"))
	defer func() { _ = log.Sync() }()

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn)
	if err != nil {
		log.Fatal("connecting to database", zap.String("type", conf.DBType), zap.Error(err))
	}

	defer func() {
		if err := db.Close(dbConn); err != nil {
			log.Warn("closing database", zap.Error(err))
		}
	}()

	// load all blockchains
	blocks, err := block.Init(conf.Bc, log)
	if err != nil {
		log.Fatal("loading blockchain clients", zap.Error(err))
	}
	defer block.End(blocks)

	// load Prometheus monitor
	if *monitor {
		s := metrics.Serve(log)
		defer s.Close()
	}

	// load message broker
	mb, err := broker.New(conf.MbType, conf.MbConn, log)
	if err != nil {
		log.Fatal("loading message broker", zap.Error(err))
	}

	if mb != nil {
		defer func() {
			if err := mb.Close(); err != nil {
				log.Warn("closing message broker", zap.Error(err))
			}
		}()
	}

	// create watcher service
	w, err := watcher.New(dbConn, mb, blocks, log)
	if err != nil {
		log.Fatal("creating watcher", zap.Error(err))
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// watch every network until killed
	if err = w.Run(ctx); err != nil {
		log.Error("watcher stopped", zap.Error(err))

		return
	}

	log.Info("watcher stopped")
}
