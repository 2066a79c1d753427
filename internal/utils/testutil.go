package utils

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// loadTestEnv loads the project .env so MONGO_URI_TEST can live there.
func loadTestEnv() string {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..")
	if err := godotenv.Load(filepath.Join(projectRoot, ".env")); err != nil {
		_ = godotenv.Load()
	}
	return os.Getenv("MONGO_URI_TEST")
}

// SetupTestDB connects to the database named by MONGO_URI_TEST and drops the
// given collections. Tests are skipped when no test database is configured.
func SetupTestDB(t *testing.T, dbName string, collections ...string) *mongo.Database {
	t.Helper()
	uri := loadTestEnv()
	if uri == "" {
		t.Skip("MONGO_URI_TEST not set; skipping MongoDB-backed test")
	}

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(dbName)
	for _, collection := range collections {
		_ = db.Collection(collection).Drop(context.Background())
	}
	return db
}
