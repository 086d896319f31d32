package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/partner-sso/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UserRepository implements domain.UserRepository
type UserRepository struct {
	users *mongo.Collection
}

// NewUserRepository creates a new UserRepository and ensures its indexes.
// The unique external_user_id index is what keeps concurrent first logins
// from creating two accounts, so failing to create it is an error.
func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	repo := &UserRepository{
		users: db.Collection(UsersCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *UserRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "external_user_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_external_user_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_user_id": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetCollation(&options.Collation{Locale: "en", Strength: 2}),
		},
	}

	_, err := r.users.Indexes().CreateMany(ctx, indexModels, options.CreateIndexes())
	if err != nil {
		return fmt.Errorf("failed to create indexes for users collection: %w", err)
	}
	log.Info().Msg("Indexes for users collection ensured.")
	return nil
}

// CreateUser creates a new user.
func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = NewObjectID()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}

	if _, err := r.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) { // Handles duplicate external id or _id
			return domain.ErrUserAlreadyExists
		}
		log.Error().Err(err).Str("userID", user.ID).Msg("Error creating user in MongoDB")
		return err
	}
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetUserByExternalID retrieves the user linked to a Partner user id.
func (r *UserRepository) GetUserByExternalID(ctx context.Context, externalUserID string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"external_user_id": externalUserID})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		log.Error().Err(err).Interface("filter", filter).Msg("Error getting user from MongoDB")
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return errors.New("user ID is required for update")
	}
	user.UpdatedAt = time.Now().UTC()

	result, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if err != nil {
		log.Error().Err(err).Str("userID", user.ID).Msg("Error updating user in MongoDB")
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Ensure interface compliance
var _ domain.UserRepository = (*UserRepository)(nil)
