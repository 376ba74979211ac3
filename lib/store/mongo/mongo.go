// Package mongo implements the interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/util"
)

// DBDefault is the database used when the uri does not name one.
const DBDefault = "luxhedge"

// Collection names.
const (
	users       = "users"
	plans       = "plans"
	funds       = "funds"
	goals       = "goals"
	withdrawals = "withdrawals"
	wallets     = "wallets"
	performance = "performance"
	otps        = "otp"
	watchers    = "watcher"
)

var newestFirst = bson.D{{Key: "createdAt", Value: -1}}

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

// watcherDoc is the document saved for the watcher of a network.
type watcherDoc struct {
	Net   string             `bson:"_id"`
	State store.WatcherState `bson:",inline"`
}

// New returns a Mongo client connection to the specified MongoDB database uri. The indexes are created if missing.
func New(uri string) (*Mongo, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid mongo DB uri %s: %w", uri, err)
	}

	name := cs.Database
	if name == "" {
		name = DBDefault
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	c, err := mgo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	m := &Mongo{c: c, db: c.Database(name)}

	if err = m.ensureIndexes(ctx); err != nil {
		_ = c.Disconnect(context.Background())

		return nil, err
	}

	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	idx := map[string][]mgo.IndexModel{
		users: {{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		otps: {{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "purpose", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		funds:       {{Keys: bson.D{{Key: "userId", Value: 1}}}, {Keys: bson.D{{Key: "status", Value: 1}}}},
		goals:       {{Keys: bson.D{{Key: "userId", Value: 1}}}},
		withdrawals: {{Keys: bson.D{{Key: "userId", Value: 1}}}},
		performance: {{Keys: bson.D{{Key: "planId", Value: 1}}}},
	}

	for col, models := range idx {
		if _, err := m.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("cannot create indexes of %s: %w", col, err)
		}
	}

	return nil
}

// Close will close a database connection. Must be called at termination time.
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

// Drop deletes the database. Used by tests.
func (m *Mongo) Drop(ctx context.Context) error {
	return m.db.Drop(ctx)
}

func (m *Mongo) insert(ctx context.Context, col string, doc interface{}) error {
	if _, err := m.db.Collection(col).InsertOne(ctx, doc); err != nil {
		if mgo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}

		return fmt.Errorf("could not insert in %s: %w", col, err)
	}

	return nil
}

// replace replaces the document id. When upsert is set the document is created if not found, otherwise
// store.ErrNotFound is returned.
func (m *Mongo) replace(ctx context.Context, col string, filter bson.M, doc interface{}, upsert bool) error {
	res, err := m.db.Collection(col).ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(upsert))
	if err != nil {
		if mgo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}

		return fmt.Errorf("could not update %s: %w", col, err)
	}

	if !upsert && res.MatchedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (m *Mongo) remove(ctx context.Context, col string, filter bson.M) error {
	res, err := m.db.Collection(col).DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("could not delete from %s: %w", col, err)
	}

	if res.DeletedCount != 1 {
		return store.ErrNotFound
	}

	return nil
}

func findOne[T any](ctx context.Context, m *Mongo, col string, filter bson.M) (v T, err error) {
	if err = m.db.Collection(col).FindOne(ctx, filter).Decode(&v); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrNotFound
	} else if err != nil {
		err = fmt.Errorf("could not read %s: %w", col, err)
	}

	return
}

func find[T any](ctx context.Context, m *Mongo, col string, filter bson.M) ([]T, error) {
	cur, err := m.db.Collection(col).Find(ctx, filter, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", col, err)
	}

	res := []T{}
	if err = cur.All(ctx, &res); err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", col, err)
	}

	return res, nil
}

// CreateUser saves a new user. Returns store.ErrDuplicate if the email is already registered.
func (m *Mongo) CreateUser(ctx context.Context, u store.User) error {
	u.Email = util.NormEmail(u.Email)

	return m.insert(ctx, users, u)
}

func (m *Mongo) GetUser(ctx context.Context, id string) (store.User, error) {
	return findOne[store.User](ctx, m, users, bson.M{"_id": id})
}

func (m *Mongo) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	return findOne[store.User](ctx, m, users, bson.M{"email": util.NormEmail(email)})
}

func (m *Mongo) UpdateUser(ctx context.Context, u store.User) error {
	u.Email = util.NormEmail(u.Email)

	return m.replace(ctx, users, bson.M{"_id": u.ID}, u, false)
}

func (m *Mongo) ListUsers(ctx context.Context) ([]store.User, error) {
	return find[store.User](ctx, m, users, bson.M{})
}

// SavePlan creates or replaces a plan.
func (m *Mongo) SavePlan(ctx context.Context, p store.Plan) error {
	return m.replace(ctx, plans, bson.M{"_id": p.ID}, p, true)
}

func (m *Mongo) GetPlan(ctx context.Context, id string) (store.Plan, error) {
	return findOne[store.Plan](ctx, m, plans, bson.M{"_id": id})
}

func (m *Mongo) ListPlans(ctx context.Context, activeOnly bool) ([]store.Plan, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}

	return find[store.Plan](ctx, m, plans, filter)
}

func (m *Mongo) DeletePlan(ctx context.Context, id string) error {
	return m.remove(ctx, plans, bson.M{"_id": id})
}

func (m *Mongo) CreateFund(ctx context.Context, f store.Fund) error {
	return m.insert(ctx, funds, f)
}

func (m *Mongo) GetFund(ctx context.Context, id string) (store.Fund, error) {
	return findOne[store.Fund](ctx, m, funds, bson.M{"_id": id})
}

func (m *Mongo) UpdateFund(ctx context.Context, f store.Fund) error {
	return m.replace(ctx, funds, bson.M{"_id": f.ID}, f, false)
}

func (m *Mongo) ListFunds(ctx context.Context, ff store.FundFilter) ([]store.Fund, error) {
	filter := bson.M{}
	setIf(filter, "userId", ff.UserID)
	setIf(filter, "planId", ff.PlanID)
	setIf(filter, "status", ff.Status)
	setIf(filter, "network", ff.Network)

	return find[store.Fund](ctx, m, funds, filter)
}

func (m *Mongo) CreateGoal(ctx context.Context, g store.Goal) error {
	return m.insert(ctx, goals, g)
}

func (m *Mongo) ListGoals(ctx context.Context, userID string) ([]store.Goal, error) {
	return find[store.Goal](ctx, m, goals, bson.M{"userId": userID})
}

// DeleteGoal removes the goal id if it belongs to userID.
func (m *Mongo) DeleteGoal(ctx context.Context, userID, id string) error {
	return m.remove(ctx, goals, bson.M{"_id": id, "userId": userID})
}

func (m *Mongo) CreateWithdrawal(ctx context.Context, w store.Withdrawal) error {
	return m.insert(ctx, withdrawals, w)
}

func (m *Mongo) GetWithdrawal(ctx context.Context, id string) (store.Withdrawal, error) {
	return findOne[store.Withdrawal](ctx, m, withdrawals, bson.M{"_id": id})
}

func (m *Mongo) UpdateWithdrawal(ctx context.Context, w store.Withdrawal) error {
	return m.replace(ctx, withdrawals, bson.M{"_id": w.ID}, w, false)
}

func (m *Mongo) ListWithdrawals(ctx context.Context, wf store.WithdrawalFilter) ([]store.Withdrawal, error) {
	filter := bson.M{}
	setIf(filter, "userId", wf.UserID)
	setIf(filter, "status", wf.Status)

	return find[store.Withdrawal](ctx, m, withdrawals, filter)
}

// SaveWallet creates or replaces a deposit wallet.
func (m *Mongo) SaveWallet(ctx context.Context, w store.Wallet) error {
	return m.replace(ctx, wallets, bson.M{"_id": w.ID}, w, true)
}

func (m *Mongo) GetWallet(ctx context.Context, id string) (store.Wallet, error) {
	return findOne[store.Wallet](ctx, m, wallets, bson.M{"_id": id})
}

// ListWallets returns the wallets selected by wf. Assets are matched ignoring case.
func (m *Mongo) ListWallets(ctx context.Context, wf store.WalletFilter) ([]store.Wallet, error) {
	ws, err := find[store.Wallet](ctx, m, wallets, bson.M{})
	if err != nil {
		return nil, err
	}

	res := ws[:0]

	for _, w := range ws {
		if wf.Match(w) {
			res = append(res, w)
		}
	}

	return res, nil
}

func (m *Mongo) DeleteWallet(ctx context.Context, id string) error {
	return m.remove(ctx, wallets, bson.M{"_id": id})
}

func (m *Mongo) AddPerformance(ctx context.Context, p store.Performance) error {
	return m.insert(ctx, performance, p)
}

// ListPerformance returns the ROI credits of planID, or of all plans when planID is empty.
func (m *Mongo) ListPerformance(ctx context.Context, planID string) ([]store.Performance, error) {
	filter := bson.M{}
	setIf(filter, "planId", planID)

	return find[store.Performance](ctx, m, performance, filter)
}

// SaveOTP creates or replaces the OTP for its email and purpose.
func (m *Mongo) SaveOTP(ctx context.Context, o store.OTP) error {
	o.Email = util.NormEmail(o.Email)

	return m.replace(ctx, otps, bson.M{"email": o.Email, "purpose": o.Purpose}, o, true)
}

func (m *Mongo) GetOTP(ctx context.Context, email, purpose string) (store.OTP, error) {
	return findOne[store.OTP](ctx, m, otps, bson.M{"email": util.NormEmail(email), "purpose": purpose})
}

func (m *Mongo) DeleteOTP(ctx context.Context, email, purpose string) error {
	return m.remove(ctx, otps, bson.M{"email": util.NormEmail(email), "purpose": purpose})
}

// LoadWatcher loads from db the state of the watcher for the indicated blockchain.
func (m *Mongo) LoadWatcher(ctx context.Context, net string) (store.WatcherState, error) {
	d, err := findOne[watcherDoc](ctx, m, watchers, bson.M{"_id": net})

	return d.State, err
}

// SaveWatcher saves to db the state of the watcher for the indicated blockchain.
func (m *Mongo) SaveWatcher(ctx context.Context, net string, ws store.WatcherState) error {
	return m.replace(ctx, watchers, bson.M{"_id": net}, watcherDoc{Net: net, State: ws}, true)
}

func setIf(filter bson.M, key, value string) {
	if value != "" {
		filter[key] = value
	}
}
