package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

var (
	clientInstance *mongo.Client
	dbInstance     *mongo.Database
	initMu         sync.Mutex
)

// InitMongoDB connects the process-wide client and selects dbName.
// It should be called once at application startup; later calls are no-ops.
func InitMongoDB(ctx context.Context, uri, dbName string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if dbInstance != nil {
		return nil
	}

	log.Info().Str("database", dbName).Msg("Initializing MongoDB client")
	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return err
	}

	// Ping the primary to verify connection.
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	clientInstance = client
	dbInstance = client.Database(dbName)
	log.Info().Msg("MongoDB client initialized successfully.")

	return nil
}

// GetDB returns the MongoDB database instance, or nil before InitMongoDB.
func GetDB() *mongo.Database {
	initMu.Lock()
	defer initMu.Unlock()
	return dbInstance
}

// Ping sends a ping to the MongoDB server using the global client.
// This is useful for health checks.
func Ping(ctx context.Context) error {
	initMu.Lock()
	client := clientInstance
	initMu.Unlock()

	if client == nil {
		return errors.New("MongoDB client is not initialized. Call InitMongoDB first.")
	}
	// Use a short timeout for pings
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}

// CloseMongoDB disconnects the MongoDB client.
// It should be called on application shutdown.
func CloseMongoDB(ctx context.Context) {
	initMu.Lock()
	defer initMu.Unlock()

	if clientInstance != nil {
		log.Info().Msg("Closing MongoDB connection.")
		if err := clientInstance.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing MongoDB connection")
		}
		clientInstance, dbInstance = nil, nil
	}
}
