package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/adamwilson22/Velaa-Backend/internal/db"
	"github.com/adamwilson22/Velaa-Backend/internal/models"
	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

// MongoVehicleStore keeps vehicles in the vehicles collection.
type MongoVehicleStore struct {
	coll *mongo.Collection
}

func NewMongoVehicleStore(database *mongo.Database) *MongoVehicleStore {
	return &MongoVehicleStore{coll: database.Collection(db.VehiclesCollection)}
}

func (s *MongoVehicleStore) Create(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	v.Touch(time.Now().UTC())
	created, err := db.InsertOne(ctx, s.coll, v)
	if err != nil && db.IsMongoDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return created, err
}

func (s *MongoVehicleStore) Update(ctx context.Context, v *models.Vehicle) error {
	v.Touch(time.Now().UTC())
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": v.ID}, v)
	if err != nil {
		return fmt.Errorf("failed to update vehicle %s: %w", v.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoVehicleStore) FindByID(ctx context.Context, id utils.SixID) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find vehicle %s: %w", id, err)
	}
	return &v, nil
}

func (s *MongoVehicleStore) FindByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.Vehicle, error) {
	out := make(map[utils.SixID]*models.Vehicle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var vehicles []models.Vehicle
	if err := findAll(ctx, s.coll, bson.M{"_id": bson.M{"$in": ids}}, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to load vehicles: %w", err)
	}
	for i := range vehicles {
		out[vehicles[i].ID] = &vehicles[i]
	}
	return out, nil
}

func (s *MongoVehicleStore) ListBillable(ctx context.Context) ([]models.Vehicle, error) {
	filter := bson.M{
		"is_active":   true,
		"status":      bson.M{"$ne": models.VehicleSold},
		"owner":       bson.M{"$exists": true, "$ne": nil},
		"monthly_fee": bson.M{"$gt": 0},
	}
	vehicles := []models.Vehicle{}
	if err := findAll(ctx, s.coll, filter, &vehicles, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})); err != nil {
		return nil, fmt.Errorf("failed to list billable vehicles: %w", err)
	}
	return vehicles, nil
}

// MongoClientStore keeps clients in the clients collection.
type MongoClientStore struct {
	coll *mongo.Collection
}

func NewMongoClientStore(database *mongo.Database) *MongoClientStore {
	return &MongoClientStore{coll: database.Collection(db.ClientsCollection)}
}

func (s *MongoClientStore) Create(ctx context.Context, c *models.Client) (*models.Client, error) {
	c.Touch(time.Now().UTC())
	return db.InsertOne(ctx, s.coll, c)
}

func (s *MongoClientStore) FindByID(ctx context.Context, id utils.SixID) (*models.Client, error) {
	var c models.Client
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find client %s: %w", id, err)
	}
	return &c, nil
}

func (s *MongoClientStore) FindByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.Client, error) {
	out := make(map[utils.SixID]*models.Client, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var clients []models.Client
	if err := findAll(ctx, s.coll, bson.M{"_id": bson.M{"$in": ids}}, &clients); err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	for i := range clients {
		out[clients[i].ID] = &clients[i]
	}
	return out, nil
}

func findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, results interface{}, opts ...*options.FindOptions) error {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, results)
}

// MongoSequenceStore keeps one counter document per key in the counters collection.
type MongoSequenceStore struct {
	coll *mongo.Collection
}

func NewMongoSequenceStore(database *mongo.Database) *MongoSequenceStore {
	return &MongoSequenceStore{coll: database.Collection(db.CountersCollection)}
}

type counter struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func (s *MongoSequenceStore) Next(ctx context.Context, key string, floor int64) (int64, error) {
	var c counter
	// Two concurrent upserts of a missing counter can collide on _id; the loser retries.
	err := db.Try(func() error {
		if floor > 0 {
			_, err := s.coll.UpdateOne(ctx,
				bson.M{"_id": key},
				bson.M{"$max": bson.M{"seq": floor}},
				options.Update().SetUpsert(true),
			)
			if err != nil {
				return err
			}
		}
		return s.coll.FindOneAndUpdate(ctx,
			bson.M{"_id": key},
			bson.M{"$inc": bson.M{"seq": int64(1)}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&c)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", key, err)
	}
	return c.Seq, nil
}

// NewMongoStores wires every Mongo-backed store to database.
func NewMongoStores(database *mongo.Database) Stores {
	return Stores{
		Ledger:    NewMongoLedgerStore(database),
		Vehicles:  NewMongoVehicleStore(database),
		Clients:   NewMongoClientStore(database),
		Sequences: NewMongoSequenceStore(database),
	}
}
