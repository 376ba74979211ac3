// Package postgres implements the interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/util"
)

// Schema creates the tables used by the services. It can be run many times.
const Schema = `
create table if not exists users (
	id            text primary key,
	name          text not null,
	email         text not null unique,
	password_hash text not null,
	role          text not null,
	verified      boolean not null default false,
	kyc           text not null,
	country       text not null default '',
	phone         text not null default '',
	created_at    timestamptz not null
);
create table if not exists plans (
	id            text primary key,
	name          text not null,
	min_amount    bigint not null,
	max_amount    bigint not null,
	roi           double precision not null,
	duration_days integer not null,
	active        boolean not null,
	created_at    timestamptz not null
);
create table if not exists funds (
	id          text primary key,
	user_id     text not null,
	plan_id     text not null,
	asset       text not null,
	network     text not null,
	amount      bigint not null,
	profit      bigint not null default 0,
	tx_hash     text not null default '',
	status      text not null,
	confirmed   boolean not null default false,
	created_at  timestamptz not null,
	approved_at timestamptz,
	matures_at  timestamptz
);
create index if not exists funds_user_id on funds (user_id);
create table if not exists goals (
	id         text primary key,
	user_id    text not null,
	name       text not null,
	target     bigint not null,
	deadline   timestamptz not null,
	created_at timestamptz not null
);
create index if not exists goals_user_id on goals (user_id);
create table if not exists withdrawals (
	id           text primary key,
	user_id      text not null,
	amount       bigint not null,
	asset        text not null,
	network      text not null,
	address      text not null,
	status       text not null,
	tx_hash      text not null default '',
	note         text not null default '',
	created_at   timestamptz not null,
	processed_at timestamptz
);
create index if not exists withdrawals_user_id on withdrawals (user_id);
create table if not exists wallets (
	id         text primary key,
	asset      text not null,
	network    text not null,
	address    text not null,
	label      text not null default '',
	active     boolean not null,
	created_at timestamptz not null
);
create table if not exists performance (
	id         text primary key,
	plan_id    text not null,
	roi        double precision not null,
	funds      integer not null,
	credit     bigint not null,
	note       text not null default '',
	created_at timestamptz not null
);
create table if not exists otp (
	email      text not null,
	purpose    text not null,
	code_hash  text not null,
	attempts   integer not null,
	expires_at timestamptz not null,
	primary key (email, purpose)
);
create table if not exists watcher (
	net   text primary key,
	state jsonb not null
);
`

// uniqueViolation is the SQLSTATE returned when a unique constraint fails.
const uniqueViolation = "23505"

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sqlx.DB
}

// New returns a postgres client connection to the specified database in 'connection'. The schema is created if
// missing.
func New(connection string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(Schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// DB returns the underlying connection. Used by the luxdb tool.
func (p *Postgres) DB() *sqlx.DB {
	return p.db
}

func dbErr(what string, err error) error {
	var pqErr *pq.Error

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return store.ErrDuplicate
	}

	return fmt.Errorf("postgres: %s: %w", what, err)
}

// exec runs a named statement. When mustAffect is set, store.ErrNotFound is returned if no row was changed.
func (p *Postgres) exec(ctx context.Context, what, query string, arg interface{}, mustAffect bool) error {
	res, err := p.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return dbErr(what, err)
	}

	if mustAffect {
		if n, err := res.RowsAffected(); err != nil {
			return dbErr(what, err)
		} else if n == 0 {
			return store.ErrNotFound
		}
	}

	return nil
}

// where builds a where clause with the non empty conditions.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) eq(column, value string) {
	if value != "" {
		w.args = append(w.args, value)
		w.conds = append(w.conds, fmt.Sprintf("%s = $%d", column, len(w.args)))
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}

	return " where " + strings.Join(w.conds, " and ")
}

// CreateUser saves a new user. Returns store.ErrDuplicate if the email is already registered.
func (p *Postgres) CreateUser(ctx context.Context, u store.User) error {
	u.Email = util.NormEmail(u.Email)

	return p.exec(ctx, "create user", `insert into users
		(id, name, email, password_hash, role, verified, kyc, country, phone, created_at) values
		(:id, :name, :email, :password_hash, :role, :verified, :kyc, :country, :phone, :created_at)`, u, false)
}

func (p *Postgres) GetUser(ctx context.Context, id string) (u store.User, err error) {
	err = dbErr("get user", p.db.GetContext(ctx, &u, `select * from users where id = $1`, id))

	return
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (u store.User, err error) {
	err = dbErr("get user", p.db.GetContext(ctx, &u, `select * from users where email = $1`, util.NormEmail(email)))

	return
}

func (p *Postgres) UpdateUser(ctx context.Context, u store.User) error {
	u.Email = util.NormEmail(u.Email)

	return p.exec(ctx, "update user", `update users set name = :name, email = :email,
		password_hash = :password_hash, role = :role, verified = :verified, kyc = :kyc, country = :country,
		phone = :phone where id = :id`, u, true)
}

func (p *Postgres) ListUsers(ctx context.Context) ([]store.User, error) {
	us := []store.User{}

	if err := p.db.SelectContext(ctx, &us, `select * from users order by created_at desc`); err != nil {
		return nil, dbErr("list users", err)
	}

	return us, nil
}

// SavePlan creates or replaces a plan.
func (p *Postgres) SavePlan(ctx context.Context, pl store.Plan) error {
	return p.exec(ctx, "save plan", `insert into plans
		(id, name, min_amount, max_amount, roi, duration_days, active, created_at) values
		(:id, :name, :min_amount, :max_amount, :roi, :duration_days, :active, :created_at)
		on conflict (id) do update set name = excluded.name, min_amount = excluded.min_amount,
		max_amount = excluded.max_amount, roi = excluded.roi, duration_days = excluded.duration_days,
		active = excluded.active`, pl, false)
}

func (p *Postgres) GetPlan(ctx context.Context, id string) (pl store.Plan, err error) {
	err = dbErr("get plan", p.db.GetContext(ctx, &pl, `select * from plans where id = $1`, id))

	return
}

func (p *Postgres) ListPlans(ctx context.Context, activeOnly bool) ([]store.Plan, error) {
	q := `select * from plans`
	if activeOnly {
		q += ` where active`
	}

	ps := []store.Plan{}

	if err := p.db.SelectContext(ctx, &ps, q + ` order by created_at desc`); err != nil {
		return nil, dbErr("list plans", err)
	}

	return ps, nil
}

func (p *Postgres) DeletePlan(ctx context.Context, id string) error {
	return p.exec(ctx, "delete plan", `delete from plans where id = :id`, map[string]interface{}{"id": id}, true)
}

func (p *Postgres) CreateFund(ctx context.Context, f store.Fund) error {
	return p.exec(ctx, "create fund", `insert into funds
		(id, user_id, plan_id, asset, network, amount, profit, tx_hash, status, confirmed, created_at, approved_at,
		matures_at) values
		(:id, :user_id, :plan_id, :asset, :network, :amount, :profit, :tx_hash, :status, :confirmed, :created_at,
		:approved_at, :matures_at)`, f, false)
}

func (p *Postgres) GetFund(ctx context.Context, id string) (f store.Fund, err error) {
	err = dbErr("get fund", p.db.GetContext(ctx, &f, `select * from funds where id = $1`, id))

	return
}

func (p *Postgres) UpdateFund(ctx context.Context, f store.Fund) error {
	return p.exec(ctx, "update fund", `update funds set user_id = :user_id, plan_id = :plan_id, asset = :asset,
		network = :network, amount = :amount, profit = :profit, tx_hash = :tx_hash, status = :status,
		confirmed = :confirmed, approved_at = :approved_at, matures_at = :matures_at where id = :id`, f, true)
}

func (p *Postgres) ListFunds(ctx context.Context, ff store.FundFilter) ([]store.Fund, error) {
	var w where
	w.eq("user_id", ff.UserID)
	w.eq("plan_id", ff.PlanID)
	w.eq("status", ff.Status)
	w.eq("network", ff.Network)

	fs := []store.Fund{}

	q := `select * from funds` + w.String() + ` order by created_at desc`
	if err := p.db.SelectContext(ctx, &fs, q, w.args...); err != nil {
		return nil, dbErr("list funds", err)
	}

	return fs, nil
}

func (p *Postgres) CreateGoal(ctx context.Context, g store.Goal) error {
	return p.exec(ctx, "create goal", `insert into goals (id, user_id, name, target, deadline, created_at) values
		(:id, :user_id, :name, :target, :deadline, :created_at)`, g, false)
}

func (p *Postgres) ListGoals(ctx context.Context, userID string) ([]store.Goal, error) {
	gs := []store.Goal{}

	q := `select * from goals where user_id = $1 order by created_at desc`
	if err := p.db.SelectContext(ctx, &gs, q, userID); err != nil {
		return nil, dbErr("list goals", err)
	}

	return gs, nil
}

// DeleteGoal removes the goal id if it belongs to userID.
func (p *Postgres) DeleteGoal(ctx context.Context, userID, id string) error {
	return p.exec(ctx, "delete goal", `delete from goals where id = :id and user_id = :user_id`,
		map[string]interface{}{"id": id, "user_id": userID}, true)
}

func (p *Postgres) CreateWithdrawal(ctx context.Context, w store.Withdrawal) error {
	return p.exec(ctx, "create withdrawal", `insert into withdrawals
		(id, user_id, amount, asset, network, address, status, tx_hash, note, created_at, processed_at) values
		(:id, :user_id, :amount, :asset, :network, :address, :status, :tx_hash, :note, :created_at,
		:processed_at)`, w, false)
}

func (p *Postgres) GetWithdrawal(ctx context.Context, id string) (w store.Withdrawal, err error) {
	err = dbErr("get withdrawal", p.db.GetContext(ctx, &w, `select * from withdrawals where id = $1`, id))

	return
}

func (p *Postgres) UpdateWithdrawal(ctx context.Context, w store.Withdrawal) error {
	return p.exec(ctx, "update withdrawal", `update withdrawals set user_id = :user_id, amount = :amount,
		asset = :asset, network = :network, address = :address, status = :status, tx_hash = :tx_hash,
		note = :note, processed_at = :processed_at where id = :id`, w, true)
}

func (p *Postgres) ListWithdrawals(ctx context.Context, wf store.WithdrawalFilter) ([]store.Withdrawal, error) {
	var w where
	w.eq("user_id", wf.UserID)
	w.eq("status", wf.Status)

	ws := []store.Withdrawal{}

	q := `select * from withdrawals` + w.String() + ` order by created_at desc`
	if err := p.db.SelectContext(ctx, &ws, q, w.args...); err != nil {
		return nil, dbErr("list withdrawals", err)
	}

	return ws, nil
}

// SaveWallet creates or replaces a deposit wallet.
func (p *Postgres) SaveWallet(ctx context.Context, w store.Wallet) error {
	return p.exec(ctx, "save wallet", `insert into wallets
		(id, asset, network, address, label, active, created_at) values
		(:id, :asset, :network, :address, :label, :active, :created_at)
		on conflict (id) do update set asset = excluded.asset, network = excluded.network,
		address = excluded.address, label = excluded.label, active = excluded.active`, w, false)
}

func (p *Postgres) GetWallet(ctx context.Context, id string) (w store.Wallet, err error) {
	err = dbErr("get wallet", p.db.GetContext(ctx, &w, `select * from wallets where id = $1`, id))

	return
}

// ListWallets returns the wallets selected by wf. Assets are matched ignoring case.
func (p *Postgres) ListWallets(ctx context.Context, wf store.WalletFilter) ([]store.Wallet, error) {
	var w where
	w.eq("network", wf.Network)

	if wf.Asset != "" {
		w.args = append(w.args, wf.Asset)
		w.conds = append(w.conds, fmt.Sprintf("lower(asset) = lower($%d)", len(w.args)))
	}

	if wf.ActiveOnly {
		w.conds = append(w.conds, "active")
	}

	ws := []store.Wallet{}

	q := `select * from wallets` + w.String() + ` order by created_at desc`
	if err := p.db.SelectContext(ctx, &ws, q, w.args...); err != nil {
		return nil, dbErr("list wallets", err)
	}

	return ws, nil
}

func (p *Postgres) DeleteWallet(ctx context.Context, id string) error {
	return p.exec(ctx, "delete wallet", `delete from wallets where id = :id`, map[string]interface{}{"id": id}, true)
}

func (p *Postgres) AddPerformance(ctx context.Context, pf store.Performance) error {
	return p.exec(ctx, "add performance", `insert into performance
		(id, plan_id, roi, funds, credit, note, created_at) values
		(:id, :plan_id, :roi, :funds, :credit, :note, :created_at)`, pf, false)
}

// ListPerformance returns the ROI credits of planID, or of all plans when planID is empty.
func (p *Postgres) ListPerformance(ctx context.Context, planID string) ([]store.Performance, error) {
	var w where
	w.eq("plan_id", planID)

	ps := []store.Performance{}

	q := `select * from performance` + w.String() + ` order by created_at desc`
	if err := p.db.SelectContext(ctx, &ps, q, w.args...); err != nil {
		return nil, dbErr("list performance", err)
	}

	return ps, nil
}

// SaveOTP creates or replaces the OTP for its email and purpose.
func (p *Postgres) SaveOTP(ctx context.Context, o store.OTP) error {
	o.Email = util.NormEmail(o.Email)

	return p.exec(ctx, "save otp", `insert into otp (email, purpose, code_hash, attempts, expires_at) values
		(:email, :purpose, :code_hash, :attempts, :expires_at)
		on conflict (email, purpose) do update set code_hash = excluded.code_hash, attempts = excluded.attempts,
		expires_at = excluded.expires_at`, o, false)
}

func (p *Postgres) GetOTP(ctx context.Context, email, purpose string) (o store.OTP, err error) {
	err = dbErr("get otp", p.db.GetContext(ctx, &o, `select * from otp where email = $1 and purpose = $2`,
		util.NormEmail(email), purpose))

	return
}

func (p *Postgres) DeleteOTP(ctx context.Context, email, purpose string) error {
	return p.exec(ctx, "delete otp", `delete from otp where email = :email and purpose = :purpose`,
		map[string]interface{}{"email": util.NormEmail(email), "purpose": purpose}, true)
}

// LoadWatcher loads from db the state of the watcher for the indicated blockchain.
func (p *Postgres) LoadWatcher(ctx context.Context, net string) (ws store.WatcherState, err error) {
	var state []byte

	if err = dbErr("load watcher", p.db.GetContext(ctx, &state, `select state from watcher where net = $1`,
		net)); err != nil {
		return
	}

	if err = json.Unmarshal(state, &ws); err != nil {
		err = fmt.Errorf("postgres: decoding watcher state: %w", err)
	}

	return
}

// SaveWatcher saves to db the state of the watcher for the indicated blockchain.
func (p *Postgres) SaveWatcher(ctx context.Context, net string, ws store.WatcherState) error {
	state, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("postgres: encoding watcher state: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `insert into watcher (net, state) values ($1, $2)
		on conflict (net) do update set state = excluded.state`, net, string(state))

	return dbErr("save watcher", err)
}
