// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/msg"
)

// noticeQueue is the queue consumed by the notifier.
const noticeQueue = "nt"

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	log  *zap.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string, log *zap.Logger) (*Amqp, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("amqp: %w", err)
	}

	log.Info("connected to message broker")

	return &Amqp{conn: conn, log: log}, nil
}

// Setup obtains an amqp channel and declares the message broker exchanges:
//
// - wr ("watch requests"): the api service publishes requests to this exchange
//
// - ee ("explorer events"): the watcher service publishes deposit events to this exchange
//
// - nt ("notifications"): the api service publishes emails to be sent by the notifier
func (r *Amqp) Setup() error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	for _, ex := range []string{msg.ExWatch, msg.ExEvents, msg.ExNotice} {
		if err = channel.ExchangeDeclare(ex, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring exchange %s: %w", ex, err)
		}
	}

	return nil
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	r.mu.Lock()
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			r.log.Warn("closing amqp channel", zap.Error(err))
		}

		r.ch = nil
	}
	r.mu.Unlock()

	return r.conn.Close()
}

// channel returns the reusable channel, obtaining it if not present.
func (r *Amqp) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		ch, err := r.conn.Channel()
		if err != nil {
			return nil, err
		}

		r.ch = ch
	}

	return r.ch, nil
}

// publish marshals v to JSON and publishes it to exchange with routing key.
func (r *Amqp) publish(exchange, key, header string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	m := amqp.Publishing{
		Headers:     amqp.Table{"x-name": header},
		Body:        body,
		ContentType: "application/json",
	}

	if err = ch.Publish(exchange, key, false, false, m); err != nil {
		return fmt.Errorf("publishing to %s: %w", exchange, err)
	}

	return nil
}

// SendTrans publishes deposit events to the "ee" exchange
func (r *Amqp) SendTrans(net string, txs []types.Trans) error {
	for _, t := range txs {
		if err := r.publish(msg.ExEvents, net+".trans."+t.Hash, net+"."+t.Hash, t); err != nil {
			r.log.Error("sending transaction event", zap.String("net", net), zap.Error(err))

			return err
		}
	}

	return nil
}

// SendRequest publishes a new watch request to the "wr" exchange
func (r *Amqp) SendRequest(net string, wr msg.WatchReq) error {
	return r.publish(msg.ExWatch, net+"."+strconv.Itoa(wr.Type)+"."+wr.Obj, net+"."+wr.Obj, wr)
}

// SendNotice publishes a notification to the "nt" exchange
func (r *Amqp) SendNotice(n msg.Notice) error {
	return r.publish(msg.ExNotice, n.Kind, n.Kind+"."+n.To, n)
}

// GetEvents consumes events from the "ee" exchange for the network pushing them to the returned channel.
func (r *Amqp) GetEvents(net string, mut *sync.Mutex) (<-chan types.Trans, <-chan error, error) {
	return consume[types.Trans](r, msg.ExEvents+net, net+".*.*", msg.ExEvents, "api-"+net, mut)
}

// GetReqs consumes requests from the "wr" exchange for the network pushing them to the returned channel.
func (r *Amqp) GetReqs(net string, mut *sync.Mutex) (<-chan msg.WatchReq, <-chan error, error) {
	return consume[msg.WatchReq](r, msg.ExWatch+net, net+".*.*", msg.ExWatch, "watcher-"+net, mut)
}

// GetNotices consumes all the notifications from the "nt" exchange.
func (r *Amqp) GetNotices(mut *sync.Mutex) (<-chan msg.Notice, <-chan error, error) {
	return consume[msg.Notice](r, noticeQueue, "#", msg.ExNotice, "notifier", mut)
}

// consume declares queue, binds it to exchange with key and decodes each message delivered into a T. The Mutex
// pointer is provided to ensure the consumed message has been fully dealt with by the management function, so the
// message consumed is only acknowledged when the mutex is unlocked.
func consume[T any](r *Amqp, queue, key, exchange, consumer string, mut *sync.Mutex) (<-chan T, <-chan error, error) {
	ch, err := r.channel()
	if err != nil {
		return nil, nil, err
	}

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, nil, fmt.Errorf("declaring queue %s: %w", queue, err)
	}

	if err = ch.QueueBind(queue, key, exchange, false, nil); err != nil {
		return nil, nil, fmt.Errorf("binding queue %s: %w", queue, err)
	}

	msgs, err := ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("consuming %s: %w", queue, err)
	}

	out := make(chan T)
	errs := make(chan error)

	go func() {
		defer close(out)

		for m := range msgs {
			var v T
			if err := json.Unmarshal(m.Body, &v); err != nil {
				errs <- err

				_ = m.Nack(false, false)

				continue
			}

			out <- v

			mut.Lock() // wait for the consumer to finish processing the message
			if err := m.Ack(false); err != nil {
				r.log.Warn("ack", zap.String("queue", queue), zap.Error(err))
			}
		}
	}()

	return out, errs, nil
}
