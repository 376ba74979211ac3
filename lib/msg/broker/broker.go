// Package broker creates the message broker selected in the configuration.
package broker

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/msg"
	"github.com/tarancss/luxhedge/lib/msg/amqp"
	"github.com/tarancss/luxhedge/lib/msg/local"
)

// Broker types.
const (
	AMQP  = "amqp"
	LOCAL = "local"
	NONE  = ""
)

// RetryAfter is how long New waits to reconnect once to an AMQP broker that is not ready.
var RetryAfter = 10 * time.Second //nolint:gochecknoglobals // overridden in tests

// ErrUnknownType is returned for an unsupported broker type.
var ErrUnknownType = errors.New("unknown message broker type")

// New connects to the broker of type mbType at conn and declares its exchanges. It returns a nil broker when no type
// is configured.
func New(mbType, conn string, log *zap.Logger) (msg.Broker, error) {
	var (
		mb  msg.Broker
		err error
	)

	switch mbType {
	case NONE:
		log.Info("no message broker configured")

		return nil, nil //nolint:nilnil // no broker
	case LOCAL:
		mb = local.New()
	case AMQP:
		var r *amqp.Amqp
		if r, err = amqp.New(conn, log); err != nil {
			log.Warn("message broker not ready, retrying", zap.Duration("after", RetryAfter), zap.Error(err))
			time.Sleep(RetryAfter)

			if r, err = amqp.New(conn, log); err != nil {
				return nil, err
			}
		}

		mb = r
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, mbType)
	}

	if err = mb.Setup(); err != nil {
		_ = mb.Close()

		return nil, fmt.Errorf("setting up message broker: %w", err)
	}

	return mb, nil
}

// Close closes mb if not nil, logging any error.
func Close(mb msg.Broker, log *zap.Logger) {
	if mb == nil {
		return
	}

	if err := mb.Close(); err != nil {
		log.Warn("closing message broker", zap.Error(err))
	}
}
