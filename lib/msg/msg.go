// Package msg defines the interface for different message brokers and the messages exchanged by the services.
package msg

import (
	"sync"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/store"
)

// Exchanges declared by every broker.
const (
	ExWatch  = "wr" // watch requests, api -> watcher
	ExEvents = "ee" // deposit events, watcher -> api
	ExNotice = "nt" // notifications, api -> notifier
)

// Types of object for watch requests.
const (
	EXIT    = -1
	ADDRESS = 0
	TX      = 1
)

// Actions to be applied to objects for watch requests.
const (
	LISTEN   = 0
	UNLISTEN = 1
)

// Kinds of notice.
const (
	NoticeOTP        = "otp"
	NoticeFund       = "fund"
	NoticeWithdrawal = "withdrawal"
	NoticeKYC        = "kyc"
)

// WatchReq defines the message that the api publishes to the watcher to ask to watch an object.
type WatchReq struct {
	Net  string `json:"net"`
	Type int    `json:"type"` // type of object
	Obj  string `json:"obj"`
	Act  int    `json:"act"` // action to be applied
}

// Notice is an email notification to an investor. Kind selects the template; the other fields are filled as the kind
// requires.
type Notice struct {
	Kind    string    `json:"kind"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Code    string    `json:"code,omitempty"`
	Purpose string    `json:"purpose,omitempty"`
	Minutes int       `json:"minutes,omitempty"`
	Ref     string    `json:"ref,omitempty"`
	Status  string    `json:"status,omitempty"`
	Amount  store.USD `json:"amount,omitempty"`
	Asset   string    `json:"asset,omitempty"`
	Note    string    `json:"note,omitempty"`
}

// Broker is implemented by the message brokers. The consumer methods return a channel of messages and a channel of
// decoding errors. The caller must lock mut before consuming and unlock it once each message has been dealt with: the
// message is only acknowledged when the mutex is unlocked.
type Broker interface {
	Setup() error
	Close() error

	// methods for the api service
	SendRequest(net string, r WatchReq) error
	GetEvents(net string, mut *sync.Mutex) (<-chan types.Trans, <-chan error, error)
	SendNotice(n Notice) error

	// methods for the watcher service
	GetReqs(net string, mut *sync.Mutex) (<-chan WatchReq, <-chan error, error)
	SendTrans(net string, t []types.Trans) error

	// methods for the notifier service
	GetNotices(mut *sync.Mutex) (<-chan Notice, <-chan error, error)
}
