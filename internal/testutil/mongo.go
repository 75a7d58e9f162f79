package testutil

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupTestMongoCollection connects to TEST_MONGO_URI (default mongodb://localhost:57017) and returns a
// uniquely named collection that is dropped when the test ends. Tests are skipped if MongoDB is not available.
func SetupTestMongoCollection(t TestingTB) *mongo.Collection {
	t.Helper()

	uri := getEnvOrDefault("TEST_MONGO_URI", "mongodb://localhost:57017")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		skipOrFail(t, requireMongo(), "MongoDB not available for testing:", err)
		return nil
	}
	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		skipOrFail(t, requireMongo(), "MongoDB not available for testing:", pingErr)
		return nil
	}

	coll := client.Database(getEnvOrDefault("TEST_MONGO_DATABASE", "itinerary_test")).Collection(generateName("jobs_"))
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if dropErr := coll.Drop(cctx); dropErr != nil {
			t.Logf("warning: failed to drop %s: %v", coll.Name(), dropErr)
		}
		if discErr := client.Disconnect(cctx); discErr != nil {
			t.Logf("warning: failed to disconnect mongo client: %v", discErr)
		}
	})
	return coll
}
