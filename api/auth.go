package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/msg"
	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/util"
)

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type otpReq struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"` // login OTP, used instead of the password
}

// session is returned when a user logs in.
type session struct {
	Token   string     `json:"token"`
	Expires time.Time  `json:"expires"`
	User    store.User `json:"user"`
}

// home just replies a welcome message to the client.
func (a *API) home(*http.Request) (interface{}, int, error) {
	return "Hello, this is the luxhedge API!", http.StatusOK, nil
}

// register creates an unverified investor and sends the verification code by email.
func (a *API) register(r *http.Request) (interface{}, int, error) {
	var req registerReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = util.NormEmail(req.Email)

	switch {
	case req.Name == "":
		return nil, 0, badRequest("name is required")
	case !strings.Contains(req.Email, "@"):
		return nil, 0, badRequest("invalid email %q", req.Email)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, 0, err
	}

	u := store.User{
		ID: uuid.NewString(), Name: req.Name, Email: req.Email, PasswordHash: hash, Role: store.RoleInvestor,
		KYC: store.KYCNone, Country: req.Country, Phone: req.Phone, CreatedAt: a.now(),
	}
	if err = a.DB.CreateUser(r.Context(), u); err != nil {
		return nil, 0, err
	}

	a.Log.Info("user registered", zap.String("user", u.ID))

	if err = a.sendCode(r.Context(), u, store.OTPVerify); err != nil {
		return nil, 0, err
	}

	return u, http.StatusCreated, nil
}

// sendOTP issues a new code for a registered email. Unknown emails are accepted silently.
func (a *API) sendOTP(r *http.Request) (interface{}, int, error) {
	var req otpReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	if req.Purpose != store.OTPVerify && req.Purpose != store.OTPLogin {
		return nil, 0, badRequest("purpose must be %s or %s", store.OTPVerify, store.OTPLogin)
	}

	u, err := a.DB.GetUserByEmail(r.Context(), util.NormEmail(req.Email))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "code sent", http.StatusAccepted, nil
	case err != nil:
		return nil, 0, err
	case req.Purpose == store.OTPVerify && u.Verified:
		return nil, 0, badRequest("account already verified")
	}

	if err = a.sendCode(r.Context(), u, req.Purpose); err != nil {
		return nil, 0, err
	}

	return "code sent", http.StatusAccepted, nil
}

// sendCode issues a code for u and purpose and notifies it.
func (a *API) sendCode(ctx context.Context, u store.User, purpose string) error {
	code, err := a.OTP.Issue(ctx, u.Email, purpose)
	if err != nil {
		return err
	}

	a.notify(ctx, msg.Notice{
		Kind: msg.NoticeOTP, To: u.Email, Name: u.Name, Code: code, Purpose: purpose,
		Minutes: int(a.OTP.TTL().Minutes()),
	})

	return nil
}

// verify checks the verification code, marks the user as verified and logs it in.
func (a *API) verify(r *http.Request) (interface{}, int, error) {
	var req otpReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	email := util.NormEmail(req.Email)
	if err := a.OTP.Verify(r.Context(), email, store.OTPVerify, req.Code); err != nil {
		return nil, 0, err
	}

	u, err := a.DB.GetUserByEmail(r.Context(), email)
	if err != nil {
		return nil, 0, err
	}

	if !u.Verified {
		u.Verified = true
		if err = a.DB.UpdateUser(r.Context(), u); err != nil {
			return nil, 0, err
		}
	}

	return a.session(u)
}

// login returns a token for a verified user given its password or a login code.
func (a *API) login(r *http.Request) (interface{}, int, error) {
	var req loginReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	email := util.NormEmail(req.Email)

	u, err := a.DB.GetUserByEmail(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, auth.ErrBadPassword
	} else if err != nil {
		return nil, 0, err
	}

	if req.Code != "" {
		err = a.OTP.Verify(r.Context(), email, store.OTPLogin, req.Code)
	} else {
		err = auth.CheckPassword(u.PasswordHash, req.Password)
	}

	if err != nil {
		return nil, 0, err
	}

	if !u.Verified {
		return nil, 0, ErrUnverified
	}

	return a.session(u)
}

func (a *API) session(u store.User) (interface{}, int, error) {
	token, exp, err := a.Tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, 0, err
	}

	return session{Token: token, Expires: exp, User: u}, http.StatusOK, nil
}
