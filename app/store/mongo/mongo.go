// Package mongo implements store.Store on MongoDB. Multi-document writes run in a
// session transaction, so the server must be a replica set (a single-node set is enough).
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"example/regcheck-api/app/apperr"
	"example/regcheck-api/app/config"
	"example/regcheck-api/app/models"
	"example/regcheck-api/app/store"
)

const (
	accountsColl     = "accounts"
	searchesColl     = "searches"
	transactionsColl = "transactions"
	ticketsColl      = "tickets"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

func Open(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique indexes the store's guarantees depend on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		accountsColl: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		searchesColl: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		transactionsColl: {
			// payment_key is omitted for free grants, so only real payment refs collide.
			{Keys: bson.D{{Key: "payment_key", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		ticketsColl: {
			{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "last_updated", Value: -1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// inTransaction runs fn inside a session transaction.
func (s *Store) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func findOptions(page models.Page, sortField string) *options.FindOptions {
	page = page.Normalize()
	return options.Find().
		SetSort(bson.D{{Key: sortField, Value: -1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))
}

func byAccount(accountID string) bson.M {
	if accountID == "" {
		return bson.M{}
	}
	return bson.M{"account_id": accountID}
}

func creditField(p models.Product) (string, error) {
	switch p {
	case models.ProductMOT:
		return "credits.mot", nil
	case models.ProductVDI:
		return "credits.vdi", nil
	case models.ProductValuation:
		return "credits.valuation", nil
	}
	return "", apperr.Invalid(fmt.Sprintf("unknown product %q", p))
}

func (s *Store) accountExists(ctx context.Context, id string) (bool, error) {
	n, err := s.db.Collection(accountsColl).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.Collection(accountsColl).InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrEmailTaken
	}
	return err
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (models.Account, error) {
	var a models.Account
	err := s.db.Collection(accountsColl).FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Account{}, apperr.ErrNotFound
	}
	return a, err
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id})
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return s.findAccount(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) ListAccounts(ctx context.Context, page models.Page) ([]models.Account, error) {
	cur, err := s.db.Collection(accountsColl).Find(ctx, bson.M{}, findOptions(page, "created_at"))
	if err != nil {
		return nil, err
	}
	out := []models.Account{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SetRole(ctx context.Context, accountID string, role models.Role) error {
	res, err := s.db.Collection(accountsColl).UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{"$set": bson.M{"role": role}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// debitUpdate builds the guarded filter and $inc for one debit. The guard lives in the
// filter, so the server evaluates and applies it as one document-level operation.
func debitUpdate(debit store.Debit) (bson.M, bson.M, error) {
	switch debit.Source {
	case store.SourceFreeTier:
		return bson.M{
				"_id":            debit.AccountID,
				"free_tier_used": bson.M{"$lte": models.FreeMOTLookups - debit.Amount},
			},
			bson.M{"$inc": bson.M{"free_tier_used": debit.Amount}},
			nil
	case store.SourceCredits:
		field, err := creditField(debit.Product)
		if err != nil {
			return nil, nil, err
		}
		return bson.M{
				"_id": debit.AccountID,
				field: bson.M{"$gte": debit.Amount},
			},
			bson.M{"$inc": bson.M{field: -debit.Amount}},
			nil
	}
	return nil, nil, apperr.Invalid(fmt.Sprintf("unknown source %q", debit.Source))
}

func (s *Store) applyDebit(ctx context.Context, debit store.Debit) error {
	if err := debit.Validate(); err != nil {
		return err
	}
	filter, update, err := debitUpdate(debit)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(accountsColl).UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	exists, err := s.accountExists(ctx, debit.AccountID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.ErrNotFound
	}
	return apperr.ErrInsufficientBalance
}

func (s *Store) ApplyDebit(ctx context.Context, debit store.Debit) error {
	return s.applyDebit(ctx, debit)
}

func (s *Store) addCredits(ctx context.Context, accountID string, product models.Product, amount int) error {
	field, err := creditField(product)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(accountsColl).UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{"$inc": bson.M{field: amount}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) AddCredits(ctx context.Context, accountID string, product models.Product, amount int) error {
	return s.addCredits(ctx, accountID, product, amount)
}

func (s *Store) CommitSearch(ctx context.Context, record *models.SearchRecord, debit store.Debit) error {
	if err := debit.Validate(); err != nil {
		return err
	}
	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.db.Collection(searchesColl).InsertOne(sc, record); err != nil {
			return err
		}
		return s.applyDebit(sc, debit)
	})
}

func (s *Store) ListSearches(ctx context.Context, accountID string, page models.Page) ([]models.SearchRecord, error) {
	cur, err := s.db.Collection(searchesColl).Find(ctx, byAccount(accountID), findOptions(page, "created_at"))
	if err != nil {
		return nil, err
	}
	out := []models.SearchRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// transactionDoc adds the sparse idempotency key next to the transaction fields.
type transactionDoc struct {
	models.Transaction `bson:",inline"`
	PaymentKey         string `bson:"payment_key,omitempty"`
}

var errDuplicatePayment = errors.New("duplicate payment reference")

func (s *Store) ApplyPayment(ctx context.Context, t *models.Transaction) (bool, error) {
	doc := transactionDoc{Transaction: *t}
	if !t.IsFreeGrant() {
		doc.PaymentKey = t.PaymentRef
	}

	err := s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.db.Collection(transactionsColl).InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errDuplicatePayment
			}
			return err
		}
		return s.addCredits(sc, t.AccountID, t.Product, t.Credits)
	})
	if errors.Is(err, errDuplicatePayment) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, page models.Page) ([]models.Transaction, error) {
	cur, err := s.db.Collection(transactionsColl).Find(ctx, byAccount(accountID), findOptions(page, "created_at"))
	if err != nil {
		return nil, err
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Transaction, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Transaction)
	}
	return out, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	_, err := s.db.Collection(ticketsColl).InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return apperr.ErrConflict
	}
	return err
}

func (s *Store) GetTicket(ctx context.Context, reference string) (models.Ticket, error) {
	var t models.Ticket
	err := s.db.Collection(ticketsColl).FindOne(ctx, bson.M{"reference": reference}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Ticket{}, apperr.ErrNotFound
	}
	return t, err
}

func (s *Store) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	next := *t
	next.Version = t.Version + 1
	res, err := s.db.Collection(ticketsColl).ReplaceOne(ctx,
		bson.M{"reference": t.Reference, "version": t.Version},
		next,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		t.Version = next.Version
		return nil
	}
	n, err := s.db.Collection(ticketsColl).CountDocuments(ctx, bson.M{"reference": t.Reference})
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return apperr.ErrConflict
}

func (s *Store) ListTickets(ctx context.Context, filter models.TicketFilter, page models.Page) ([]models.Ticket, error) {
	q := byAccount(filter.AccountID)
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	cur, err := s.db.Collection(ticketsColl).Find(ctx, q, findOptions(page, "last_updated"))
	if err != nil {
		return nil, err
	}
	out := []models.Ticket{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
