package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/partner-sso/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SessionRepositoryMongo implements the domain.SessionRepository interface using MongoDB.
type SessionRepositoryMongo struct {
	collection *mongo.Collection
}

// NewSessionRepositoryMongo creates a new SessionRepositoryMongo.
// It also ensures that necessary indexes are created on the collection.
func NewSessionRepositoryMongo(ctx context.Context, db *mongo.Database) (*SessionRepositoryMongo, error) {
	repo := &SessionRepositoryMongo{
		collection: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_id", Value: 1}}, // JWT JTI
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index(), // Not unique, user can have multiple sessions
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0), // TTL index for automatic cleanup
		},
	}

	_, err := repo.collection.Indexes().CreateMany(ctx, indexModels, options.CreateIndexes())
	if err != nil {
		// Sessions still work without the TTL index; expired ones just linger.
		log.Warn().Err(err).Msg("Issue creating indexes for sessions collection (might already exist or other error)")
	} else {
		log.Info().Msg("Indexes for sessions collection ensured.")
	}

	return repo, nil
}

// StoreSession creates a new session.
func (r *SessionRepositoryMongo) StoreSession(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		session.ID = NewObjectID() // Generate new ID if not provided
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.New("session with this ID or TokenID already exists")
		}
		log.Error().Err(err).Msg("Error storing session in MongoDB")
		return err
	}
	return nil
}

// GetSessionByTokenID retrieves a session by its TokenID (the JWT JTI).
func (r *SessionRepositoryMongo) GetSessionByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	var session domain.Session
	err := r.collection.FindOne(ctx, bson.M{"token_id": tokenID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		log.Error().Err(err).Str("tokenID", tokenID).Msg("Error getting session by TokenID from MongoDB")
		return nil, err
	}
	return &session, nil
}

// RevokeSession marks a session as revoked.
func (r *SessionRepositoryMongo) RevokeSession(ctx context.Context, id string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"is_revoked": true}})
	if err != nil {
		log.Error().Err(err).Str("sessionID", id).Msg("Error revoking session in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

var _ domain.SessionRepository = (*SessionRepositoryMongo)(nil)
