package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/invest"
	"github.com/tarancss/luxhedge/lib/store"
)

// maxBody is the maximum size of a request body.
const maxBody = 1 << 20

// Errors returned to client requests.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNoToken      = errors.New("missing bearer token")
	ErrForbidden    = errors.New("not allowed")
	ErrUnverified   = errors.New("account not verified")
	ErrChange       = errors.New("invalid change: has to be either 0 /1 or external / change")
	ErrMissingNet   = errors.New("undefined blockchain - missing query: ?net=<blockchain>")
	ErrNoAddr       = errors.New("undefined address - missing in uri")
	ErrNoHash       = errors.New("a 32-byte hash is required")
	ErrNoNet        = errors.New("network not available")
	ErrUpstream     = errors.New("upstream service failed")
	ErrNotSupported = errors.New("not supported by this network")
	ErrNoSeed       = errors.New("HD wallet seed not configured")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  interface{} `json:"body"`
	Error string      `json:"error,omitempty"`
}

// handler is the signature of the API handlers: they return the body of the response and the http status code on
// success, or an error that is mapped to a status code by statusOf.
type handler func(r *http.Request) (interface{}, int, error)

// statusOf returns the http status code for err.
func statusOf(err error) int {
	is := func(targets ...error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}

		return false
	}

	switch {
	case is(ErrNoToken, auth.ErrBadToken, auth.ErrBadPassword, auth.ErrOTPInvalid, auth.ErrOTPExpired,
		auth.ErrOTPAttempts):
		return http.StatusUnauthorized
	case is(ErrForbidden, ErrUnverified):
		return http.StatusForbidden
	case is(store.ErrNotFound, ErrNoNet, types.ErrNoAccount, types.ErrNoTrx):
		return http.StatusNotFound
	case is(store.ErrDuplicate, invest.ErrTransition):
		return http.StatusConflict
	case is(ErrBadRequest, ErrChange, ErrMissingNet, ErrNoAddr, ErrNoHash, ErrNotSupported, types.ErrNotSupported,
		auth.ErrShortPassword, store.ErrBadAmount, invest.ErrBadROI, invest.ErrOutOfRange, invest.ErrNotPositive,
		invest.ErrInsufficient):
		return http.StatusBadRequest
	case is(ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// badRequest wraps a validation message as ErrBadRequest.
func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// upstream wraps an error of a third-party service as ErrUpstream.
func upstream(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, what, err)
}

// decode reads the JSON body of r into v.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody)).Decode(v); err != nil {
		return badRequest("decoding body: %s", err.Error())
	}

	return nil
}

// decodeOpt is like decode but accepts an empty body.
func decodeOpt(r *http.Request, v interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	return badRequest("decoding body: %s", err.Error())
}

// reply writes the Response envelope.
func reply(rw http.ResponseWriter, status int, res Response) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(&res)
}
