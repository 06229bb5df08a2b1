package bar

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/Tudornitu1/stock-tracker-gcs/internal/bar"
	platmongo "github.com/Tudornitu1/stock-tracker-gcs/internal/platform/mongo"
)

// barDoc is the stored document. Field names match the daily_prices
// collection written by earlier versions of the pipeline.
type barDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Symbol    string             `bson:"symbol"`
	Date      time.Time          `bson:"date"`
	Open      float64            `bson:"open"`
	High      float64            `bson:"high"`
	Low       float64            `bson:"low"`
	Close     float64            `bson:"close"`
	Volume    int64              `bson:"volume"`
	CreatedAt time.Time          `bson:"created_at,omitempty"`
	UpdatedAt time.Time          `bson:"updated_at,omitempty"`
}

func (d barDoc) toDomain() *domain.Bar {
	return &domain.Bar{
		ID:        d.ID.Hex(),
		Symbol:    d.Symbol,
		Date:      d.Date.UTC(),
		Open:      d.Open,
		High:      d.High,
		Low:       d.Low,
		Close:     d.Close,
		Volume:    d.Volume,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRepository(coll *mongo.Collection) *MongoRepository {
	return &MongoRepository{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique (symbol, date) index the upsert relies on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "symbol", Value: 1}, {Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("symbol_date_unique"),
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

func keyFilter(symbol string, date time.Time) bson.D {
	return bson.D{{Key: "symbol", Value: symbol}, {Key: "date", Value: date}}
}

func valueSet(v domain.Values) bson.D {
	return bson.D{
		{Key: "open", Value: v.Open},
		{Key: "high", Value: v.High},
		{Key: "low", Value: v.Low},
		{Key: "close", Value: v.Close},
		{Key: "volume", Value: v.Volume},
	}
}

// UpsertBars sends one unordered bulk write of upserting UpdateOne models.
// updated_at is only touched through $setOnInsert so ModifiedCount reflects
// real value changes.
func (r *MongoRepository) UpsertBars(ctx context.Context, bars []domain.Bar) (domain.UpsertResult, error) {
	if len(bars) == 0 {
		return domain.UpsertResult{}, nil
	}

	now := r.now().UTC()
	models := make([]mongo.WriteModel, 0, len(bars))
	for _, b := range bars {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(keyFilter(b.Symbol, b.Date)).
			SetUpdate(bson.D{
				{Key: "$set", Value: valueSet(b.Values())},
				{Key: "$setOnInsert", Value: bson.D{
					{Key: "created_at", Value: now},
					{Key: "updated_at", Value: now},
				}},
			}).
			SetUpsert(true))
	}

	res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("bulk upsert: %w", err)
	}
	return domain.UpsertResult{
		Matched:  res.MatchedCount,
		Inserted: res.UpsertedCount,
		Modified: res.ModifiedCount,
	}, nil
}

func (r *MongoRepository) ListBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "symbol", Value: symbol}},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}

	var docs []barDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}

	bars := make([]domain.Bar, len(docs))
	for i, d := range docs {
		bars[i] = *d.toDomain()
	}
	return bars, nil
}

func (r *MongoRepository) GetBar(ctx context.Context, symbol string, date time.Time) (*domain.Bar, error) {
	var doc barDoc
	err := r.coll.FindOne(ctx, keyFilter(symbol, date)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bar: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) UpdateBar(ctx context.Context, id string, v domain.Values) (*domain.Bar, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	set := append(valueSet(v), bson.E{Key: "updated_at", Value: r.now().UTC()})
	var doc barDoc
	err = r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update bar: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) DeleteBar(ctx context.Context, symbol string, date time.Time) error {
	res, err := r.coll.DeleteOne(ctx, keyFilter(symbol, date))
	if err != nil {
		return fmt.Errorf("delete bar: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteByID(ctx context.Context, id string) (*domain.Bar, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	var doc barDoc
	err = r.coll.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete bar: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) ListSymbols(ctx context.Context) ([]string, error) {
	values, err := r.coll.Distinct(ctx, "symbol", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}

	symbols := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			symbols = append(symbols, s)
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return platmongo.Ping(ctx, r.coll.Database().Client())
}
