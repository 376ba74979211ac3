// Package notifier implements the notifier service: it consumes the notifications published by the api service and
// delivers them by email.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/msg"
)

// SendTimeout limits the delivery of a single mail.
const SendTimeout = 30 * time.Second

// ErrNoBroker is returned by New without a message broker.
var ErrNoBroker = errors.New("notifier: no message broker")

// Sender delivers a notice, implemented by mail.Sender.
type Sender interface {
	Send(ctx context.Context, n msg.Notice) error
}

// Notifier contains the data necessary to deliver the service.
type Notifier struct {
	mb  msg.Broker
	s   Sender
	log *zap.Logger
}

// New returns a notifier consuming mb and delivering through s.
func New(mb msg.Broker, s Sender, log *zap.Logger) (*Notifier, error) {
	if mb == nil {
		return nil, ErrNoBroker
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Notifier{mb: mb, s: s, log: log}, nil
}

// Run consumes notices until ctx is cancelled or the broker stops delivering. A notice that cannot be delivered is
// logged and dropped.
func (n *Notifier) Run(ctx context.Context) error {
	mut := new(sync.Mutex)
	mut.Lock()

	notCh, errCh, err := n.mb.GetNotices(mut)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()

		n.log.Info("start listening to notifications")
		defer n.log.Info("stop listening to notifications")

		for {
			select {
			case <-ctx.Done():
				return nil
			case not, ok := <-notCh:
				if !ok {
					return nil
				}

				n.deliver(ctx, not)
				mut.Unlock()
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-errCh:
				if !ok {
					return nil
				}

				n.log.Warn("notification", zap.Error(e))
			}
		}
	})

	return g.Wait()
}

// deliver sends not and counts the result.
func (n *Notifier) deliver(ctx context.Context, not msg.Notice) {
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	if err := n.s.Send(ctx, not); err != nil {
		metrics.Mails.WithLabelValues(not.Kind, "failed").Inc()
		n.log.Error("sending mail", zap.String("kind", not.Kind), zap.String("to", not.To), zap.Error(err))

		return
	}

	metrics.Mails.WithLabelValues(not.Kind, "sent").Inc()
	n.log.Debug("mail sent", zap.String("kind", not.Kind), zap.String("to", not.To))
}
