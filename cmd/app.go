package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/db"
	"github.com/adamwilson22/Velaa-Backend/internal/metrics"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
	"github.com/adamwilson22/Velaa-Backend/internal/store"
)

// app holds the storage-backed services shared by every command.
type app struct {
	cfg     *config.Config
	client  *mongo.Client
	mongoDb *mongo.Database // nil with the memory driver
	stores  store.Stores
	metrics *metrics.Metrics
	billing services.IBillingService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewMetrics(nil)}

	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("STORE_DRIVER=memory: data is lost on exit")
		a.stores = store.NewMemoryStores()
	default:
		client, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, err
		}
		ictx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := db.EnsureIndexes(ictx, database); err != nil {
			_ = db.DisconnectDB(client)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		a.client, a.mongoDb = client, database
		a.stores = store.NewMongoStores(database)
	}

	numbers := services.NewInvoiceNumberAllocator(a.stores.Ledger, a.stores.Sequences)
	a.billing = services.NewBillingService(a.stores, numbers, cfg, services.WithMetrics(a.metrics))
	return a, nil
}

func (a *app) Close() {
	if err := db.DisconnectDB(a.client); err != nil {
		log.Error().Err(err).Msg("error disconnecting from MongoDB")
	}
}
