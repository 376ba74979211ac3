// Package main: notifier service.
//
// The notifier consumes the notifications published by the api service and mails them to the investors through the
// Brevo API or an SMTP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/config"
	"github.com/tarancss/luxhedge/lib/logging"
	"github.com/tarancss/luxhedge/lib/mail"
	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/msg/broker"
	"github.com/tarancss/luxhedge/notifier"
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

	log := logging.Must(conf.LogLevel, conf.LogJSON).With(zap.String("service", "notifier"))
	defer func() { _ = log.Sync() }()

	t, err := mail.NewTransport(conf.MailURL, conf.MailKey, conf.MailFrom, conf.MailName)
	if err != nil {
		log.Fatal("loading mail transport", zap.Error(err))
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

	n, err := notifier.New(mb, mail.NewSender(t), log)
	if err != nil {
		log.Fatal("creating notifier", zap.Error(err))
	}

	defer func() {
		if err := mb.Close(); err != nil {
			log.Warn("closing message broker", zap.Error(err))
		}
	}()

	// capture CTRL+C or docker's SIGTERM for gracious exit
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = n.Run(ctx); err != nil {
		log.Error("notifier stopped", zap.Error(err))

		return
	}

	log.Info("notifier stopped")
}
