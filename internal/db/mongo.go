package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared by the stores.
const (
	InvoicesCollection       = "billings"
	VehiclesCollection       = "vehicles"
	ClientsCollection        = "clients"
	CountersCollection       = "counters"
	EmailTemplatesCollection = "email_templates"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Str("database", dbName).Msg("connected to MongoDB")
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	log.Info().Msg("MongoDB connection closed")
	return nil
}

// EnsureIndexes creates the indexes the ledger relies on. The unique index on
// (vehicle, transaction_type, billing_period) is what makes invoice creation
// idempotent under concurrent callers.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	invoiceIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "vehicle", Value: 1},
				{Key: "transaction_type", Value: 1},
				{Key: "billing_period", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_vehicle_type_period"),
		},
		{
			Keys:    bson.D{{Key: "invoice_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_invoice_number"),
		},
		{
			Keys: bson.D{{Key: "billing_period", Value: 1}, {Key: "due_date", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "due_date", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "client", Value: 1}},
		},
	}
	if _, err := database.Collection(InvoicesCollection).Indexes().CreateMany(ctx, invoiceIndexes); err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}

	vehicleIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chassis_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_chassis_number"),
		},
		{
			Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "status", Value: 1}},
		},
	}
	if _, err := database.Collection(VehiclesCollection).Indexes().CreateMany(ctx, vehicleIndexes); err != nil {
		return fmt.Errorf("failed to create vehicle indexes: %w", err)
	}

	templateIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "template_id", Value: 1}, {Key: "locale", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := database.Collection(EmailTemplatesCollection).Indexes().CreateOne(ctx, templateIndex); err != nil {
		return fmt.Errorf("failed to create email template index: %w", err)
	}

	return nil
}
