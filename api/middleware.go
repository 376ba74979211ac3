package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/util"
)

type ctxKey int

const userKey ctxKey = 0

// user returns the authenticated user of the request.
func user(r *http.Request) store.User {
	u, _ := r.Context().Value(userKey).(store.User)

	return u
}

// handle adapts h to an http.HandlerFunc writing the Response envelope, logging the request and recording metrics.
func (a *API) handle(h handler) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()

		body, status, err := h(r)

		res := Response{Body: body}
		if err != nil {
			status = statusOf(err)
			res = Response{Error: err.Error()}
		}

		reply(rw, status, res)

		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, e := cr.GetPathTemplate(); e == nil {
				route = tpl
			}
		}

		metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.Latency.WithLabelValues(route).Observe(time.Since(start).Seconds())

		fields := []zap.Field{
			zap.String("method", r.Method), zap.String("route", route), zap.Int("status", status),
			zap.String("remote", r.RemoteAddr), zap.Duration("latency", time.Since(start)),
		}

		switch {
		case status >= http.StatusInternalServerError:
			a.Log.Error("httpreq", append(fields, zap.Error(err))...)
		case err != nil:
			a.Log.Info("httpreq", append(fields, zap.String("error", err.Error()))...)
		default:
			a.Log.Debug("httpreq", fields...)
		}
	}
}

// authed requires a valid bearer token of a verified user with one of roles (any role when empty) before calling h.
func (a *API) authed(h handler, roles ...string) handler {
	return func(r *http.Request) (interface{}, int, error) {
		hdr := r.Header.Get("Authorization")
		if !strings.HasPrefix(hdr, "Bearer ") {
			return nil, 0, ErrNoToken
		}

		c, err := a.Tokens.Parse(strings.TrimSpace(strings.TrimPrefix(hdr, "Bearer ")))
		if err != nil {
			return nil, 0, err
		}

		u, err := a.DB.GetUser(r.Context(), c.Subject)
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, auth.ErrBadToken
		} else if err != nil {
			return nil, 0, err
		}

		if !u.Verified {
			return nil, 0, ErrUnverified
		}

		if len(roles) > 0 && !util.In(roles, u.Role) {
			return nil, 0, ErrForbidden
		}

		return h(r.WithContext(context.WithValue(r.Context(), userKey, u)))
	}
}
