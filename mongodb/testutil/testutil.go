// Package testutil provides throwaway MongoDB databases for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// URIEnv names the variable holding the test server's connection string.
const URIEnv = "PSSO_TEST_MONGO_URI"

// NewDatabase connects to the server at $PSSO_TEST_MONGO_URI and returns a
// uniquely named database that is dropped when the test ends. The test is
// skipped when the variable is unset.
func NewDatabase(t *testing.T, prefix string) *mongo.Database {
	t.Helper()

	uri := os.Getenv(URIEnv)
	if uri == "" {
		t.Skipf("%s not set, skipping MongoDB integration test", URIEnv)
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetServerSelectionTimeout(10 * time.Second))
	require.NoError(t, err, "connecting to test MongoDB")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Fatalf("test MongoDB unreachable: %v", err)
	}

	db := client.Database(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("dropping %s: %v", db.Name(), err)
		}
		_ = client.Disconnect(ctx)
	})
	return db
}
