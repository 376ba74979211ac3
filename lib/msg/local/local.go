// Package local implements an in-process message broker. Messages are queued per exchange and network and delivered
// to the consumer of the same process. It is used by the tests and by services run without a broker.
package local

import (
	"errors"
	"sync"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/msg"
)

// QueueLen is the number of messages a queue holds before senders block.
const QueueLen = 1024

// ErrClosed is returned when sending to a closed broker.
var ErrClosed = errors.New("broker closed")

// Local is an in-process broker.
type Local struct {
	mu      sync.Mutex
	closed  bool
	reqs    map[string]chan msg.WatchReq
	events  map[string]chan types.Trans
	notices chan msg.Notice
}

// New returns an empty broker.
func New() *Local {
	return &Local{
		reqs:    map[string]chan msg.WatchReq{},
		events:  map[string]chan types.Trans{},
		notices: make(chan msg.Notice, QueueLen),
	}
}

// Setup does nothing, queues are created on first use.
func (l *Local) Setup() error { return nil }

// Close stops the delivery of messages to consumers.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	for _, c := range l.reqs {
		close(c)
	}

	for _, c := range l.events {
		close(c)
	}

	close(l.notices)

	return nil
}

// queue returns the queue of net in m, creating it if needed. l.mu must be held.
func queue[T any](l *Local, m map[string]chan T, net string) (chan T, error) {
	if l.closed {
		return nil, ErrClosed
	}

	c, ok := m[net]
	if !ok {
		c = make(chan T, QueueLen)
		m[net] = c
	}

	return c, nil
}

// send queues vs in the queue of net in m.
func send[T any](l *Local, m map[string]chan T, net string, vs ...T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := queue(l, m, net)
	if err != nil {
		return err
	}

	for _, v := range vs {
		c <- v
	}

	return nil
}

// consumer returns the queue of net in m.
func consumer[T any](l *Local, m map[string]chan T, net string) (chan T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return queue(l, m, net)
}

// SendRequest queues a watch request for the watcher of net.
func (l *Local) SendRequest(net string, r msg.WatchReq) error {
	return send(l, l.reqs, net, r)
}

// SendTrans queues deposit events for the api consumer of net.
func (l *Local) SendTrans(net string, txs []types.Trans) error {
	return send(l, l.events, net, txs...)
}

// SendNotice queues a notification.
func (l *Local) SendNotice(n msg.Notice) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	l.notices <- n

	return nil
}

// GetReqs delivers the watch requests for net.
func (l *Local) GetReqs(net string, mut *sync.Mutex) (<-chan msg.WatchReq, <-chan error, error) {
	c, err := consumer(l, l.reqs, net)
	if err != nil {
		return nil, nil, err
	}

	out, errs := deliver(c, mut)

	return out, errs, nil
}

// GetEvents delivers the deposit events for net.
func (l *Local) GetEvents(net string, mut *sync.Mutex) (<-chan types.Trans, <-chan error, error) {
	c, err := consumer(l, l.events, net)
	if err != nil {
		return nil, nil, err
	}

	out, errs := deliver(c, mut)

	return out, errs, nil
}

// GetNotices delivers the notifications.
func (l *Local) GetNotices(mut *sync.Mutex) (<-chan msg.Notice, <-chan error, error) {
	out, errs := deliver(l.notices, mut)

	return out, errs, nil
}

// deliver forwards every message in c to the returned channel, waiting for mut to be unlocked after each one.
func deliver[T any](c <-chan T, mut *sync.Mutex) (<-chan T, <-chan error) {
	out := make(chan T)

	go func() {
		defer close(out)

		for v := range c {
			out <- v

			mut.Lock()
		}
	}()

	return out, make(chan error)
}

// Drain removes and returns the notifications queued and not consumed yet.
func (l *Local) Drain() []msg.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ns []msg.Notice

	for {
		select {
		case n, ok := <-l.notices:
			if !ok {
				return ns
			}

			ns = append(ns, n)
		default:
			return ns
		}
	}
}
