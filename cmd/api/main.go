// Package main: api service.
//
// The api service serves the RESTful API of the investor dashboard and the admin panel. It shares the database with
// the watcher service, which it asks through the message broker to watch the deposit wallets.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/api"
	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/config"
	"github.com/tarancss/luxhedge/lib/logging"
	"github.com/tarancss/luxhedge/lib/mail"
	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/msg/broker"
	"github.com/tarancss/luxhedge/lib/price"
	"github.com/tarancss/luxhedge/lib/store/db"
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

	log := logging.Must(conf.LogLevel, conf.LogJSON).With(zap.String("service", "api"))
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

	log.Info("connected to database", zap.String("type", conf.DBType))

	// load all blockchains
	blocks, err := block.Init(conf.Bc, log)
	if err != nil {
		log.Fatal("loading blockchain clients", zap.Error(err))
	}
	defer block.End(blocks)

	log.Info("blockchain clients loaded", zap.Int("networks", len(blocks)))

	// load HD wallet, the cold wallet endpoints are disabled without a seed
	hdw, err := api.NewHD(conf.Seed)
	if err != nil {
		log.Fatal("loading HD wallet", zap.Error(err))
	}

	if hdw == nil {
		log.Warn("no HD wallet seed configured, cold wallet keys disabled")
	}

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

	// without a broker notifications are mailed by this service
	var sender *mail.Sender

	if mb == nil {
		t, err := mail.NewTransport(conf.MailURL, conf.MailKey, conf.MailFrom, conf.MailName)
		if err != nil {
			log.Warn("notifications disabled", zap.Error(err))
		} else {
			sender = mail.NewSender(t)
		}
	}

	tokens, err := auth.NewTokens(conf.JWTSecret, time.Duration(conf.TokenHours)*time.Hour)
	if err != nil {
		log.Fatal("loading token issuer", zap.Error(err))
	}

	prices := price.New(conf.PriceURL, time.Duration(conf.PriceTTL)*time.Second)
	defer prices.Close()

	// create api service
	a := api.New(api.Deps{
		DB:     dbConn,
		Chains: blocks,
		HD:     hdw,
		Broker: mb,
		Mail:   sender,
		Prices: prices,
		Tokens: tokens,
		OTP:    auth.NewOTP(dbConn, conf.OTPLength, time.Duration(conf.OTPMinutes)*time.Minute),
		Log:    log,
		DryRun: conf.DryRun,
	})

	// capture CTRL+C or docker's SIGTERM for gracious exit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("program killed, stopping")
		a.Stop()
	}()

	// manage watcher events
	if err = a.ManageEvents(); err != nil {
		log.Error("setting up broker readers for deposit events", zap.Error(err))
	}

	// init RESTful API and wait for its return
	if err = a.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey); err != nil {
		log.Error("api stopped", zap.Error(err))
	}
}
