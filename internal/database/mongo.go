package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/internal/store"
	"chartscan/lib/sl"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionAccounts = "accounts"
	collectionScans    = "scans"
	collectionEntries  = "ledger_entries"

	// casAttempts bounds the optimistic retries of one Transact call.
	casAttempts = 8
)

// MongoDB stores accounts as documents carrying a version field; every
// update is a compare-and-swap on (user_id, version).
type MongoDB struct {
	client   *mongo.Client
	database string
	log      *slog.Logger
}

var _ store.Store = (*MongoDB)(nil)

func NewMongoClient(ctx context.Context, conf *config.Config, log *slog.Logger) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	m := &MongoDB{
		client:   client,
		database: conf.Mongo.Database,
		log:      log.With(sl.Module("database.mongo")),
	}
	if err = m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) Close() {
	_ = m.client.Disconnect(context.Background())
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := m.collection(collectionAccounts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "referral_code", Value: 1}}},
		{Keys: bson.D{{Key: "total_scans", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb accounts indexes: %w", err)
	}
	_, err = m.collection(collectionScans).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongodb scans indexes: %w", err)
	}
	return nil
}

// defaultAccount is inserted on first touch; user_id comes from the filter.
func defaultAccount(userID int64, now time.Time) bson.D {
	acc := entity.NewAccount(userID, now)
	return bson.D{
		{Key: "referral_code", Value: acc.ReferralCode},
		{Key: "free_scans_used_today", Value: 0},
		{Key: "last_reset_day", Value: ""},
		{Key: "bonus_credits", Value: 0},
		{Key: "referred_by", Value: int64(0)},
		{Key: "total_scans", Value: int64(0)},
		{Key: "version", Value: int64(0)},
		{Key: "created_at", Value: now},
		{Key: "updated_at", Value: now},
	}
}

func (m *MongoDB) Read(ctx context.Context, userID int64, now time.Time) (*entity.Account, error) {
	collection := m.collection(collectionAccounts)
	filter := bson.D{{Key: "user_id", Value: userID}}
	update := bson.D{{Key: "$setOnInsert", Value: defaultAccount(userID, now)}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var acc entity.Account
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&acc)
	if mongo.IsDuplicateKeyError(err) {
		// lost the insert race; the winner's document is there now
		err = collection.FindOne(ctx, filter).Decode(&acc)
	}
	if err != nil {
		return nil, store.Unavailable("mongodb read account", err)
	}
	return &acc, nil
}

func (m *MongoDB) Transact(ctx context.Context, userID int64, now time.Time, fn store.Mutation) (*entity.Account, error) {
	collection := m.collection(collectionAccounts)
	for attempt := 1; attempt <= casAttempts; attempt++ {
		current, err := m.Read(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		work := current.Clone()
		if err = fn(work); err != nil {
			if errors.Is(err, store.ErrNoop) {
				return current, nil
			}
			return nil, err
		}
		work.UserID = userID
		work.Version = current.Version + 1
		work.UpdatedAt = now

		filter := bson.D{{Key: "user_id", Value: userID}, {Key: "version", Value: current.Version}}
		result, err := collection.ReplaceOne(ctx, filter, work)
		if err != nil {
			return nil, store.Unavailable("mongodb replace account", err)
		}
		if result.MatchedCount == 1 {
			return work, nil
		}
		m.log.With(
			sl.User(userID),
			slog.Int("attempt", attempt),
		).Debug("version conflict")
	}
	return nil, store.Unavailable("mongodb transact", store.ErrConflict)
}

func (m *MongoDB) FindByReferralCode(ctx context.Context, code string) (int64, error) {
	filter := bson.D{{Key: "referral_code", Value: code}}
	var acc entity.Account
	err := m.collection(collectionAccounts).FindOne(ctx, filter).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, store.Unavailable("mongodb find referral code", err)
	}
	return acc.UserID, nil
}

func (m *MongoDB) AppendEntry(ctx context.Context, entry *entity.LedgerEntry) error {
	_, err := m.collection(collectionEntries).InsertOne(ctx, entry)
	if err != nil {
		return store.Unavailable("mongodb append entry", err)
	}
	return nil
}

func (m *MongoDB) SaveScan(ctx context.Context, scan *entity.ScanRecord) error {
	_, err := m.collection(collectionScans).InsertOne(ctx, scan)
	if err != nil {
		return store.Unavailable("mongodb save scan", err)
	}
	return nil
}

func (m *MongoDB) ScanHistory(ctx context.Context, userID int64, limit int) ([]*entity.ScanRecord, error) {
	limit = store.ClampLimit(limit, store.DefaultHistoryLimit)
	filter := bson.D{{Key: "user_id", Value: userID}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := m.collection(collectionScans).Find(ctx, filter, opts)
	if err != nil {
		return nil, store.Unavailable("mongodb scan history", err)
	}
	defer cursor.Close(ctx)

	scans := make([]*entity.ScanRecord, 0, limit)
	if err = cursor.All(ctx, &scans); err != nil {
		return nil, store.Unavailable("mongodb scan history", err)
	}
	return scans, nil
}

func (m *MongoDB) Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error) {
	limit = store.ClampLimit(limit, store.DefaultLeaderboardLimit)
	filter := bson.D{{Key: "total_scans", Value: bson.D{{Key: "$gt", Value: 0}}}}
	opts := options.Find().
		SetSort(bson.D{{Key: "total_scans", Value: -1}, {Key: "user_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: "user_id", Value: 1}, {Key: "username", Value: 1}, {Key: "first_name", Value: 1}, {Key: "total_scans", Value: 1}})
	cursor, err := m.collection(collectionAccounts).Find(ctx, filter, opts)
	if err != nil {
		return nil, store.Unavailable("mongodb leaderboard", err)
	}
	defer cursor.Close(ctx)

	entries := make([]*entity.LeaderboardEntry, 0, limit)
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, store.Unavailable("mongodb leaderboard", err)
	}
	return store.RankEntries(entries), nil
}

func (m *MongoDB) Stats(ctx context.Context, dayStart, now time.Time) (*entity.Stats, error) {
	accounts := m.collection(collectionAccounts)
	stats := &entity.Stats{}
	var err error

	if stats.Accounts, err = accounts.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, store.Unavailable("mongodb count accounts", err)
	}
	stats.PremiumActive, err = accounts.CountDocuments(ctx, bson.D{{Key: "premium_until", Value: bson.D{{Key: "$gt", Value: now}}}})
	if err != nil {
		return nil, store.Unavailable("mongodb count premium", err)
	}
	stats.ScansToday, err = m.collection(collectionScans).CountDocuments(ctx, bson.D{{Key: "created_at", Value: bson.D{{Key: "$gte", Value: dayStart}}}})
	if err != nil {
		return nil, store.Unavailable("mongodb count scans", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "total_scans", Value: bson.D{{Key: "$sum", Value: "$total_scans"}}}}}},
	}
	cursor, err := accounts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, store.Unavailable("mongodb sum scans", err)
	}
	defer cursor.Close(ctx)
	var sums []struct {
		TotalScans int64 `bson:"total_scans"`
	}
	if err = cursor.All(ctx, &sums); err != nil {
		return nil, store.Unavailable("mongodb sum scans", err)
	}
	if len(sums) > 0 {
		stats.TotalScans = sums[0].TotalScans
	}
	return stats, nil
}
