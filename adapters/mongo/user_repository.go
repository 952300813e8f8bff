package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new MongoDB user repository
func NewUserRepository(db *mongo.Database) repositories.UserRepository {
	return &UserRepository{
		collection: db.Collection(usersCollection),
	}
}

// Upsert implements repositories.UserRepository. Existing users are returned unchanged.
func (r *UserRepository) Upsert(ctx context.Context, user *entities.User) (*entities.User, error) {
	if user == nil {
		return nil, errors.New("user cannot be nil")
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	update := bson.M{
		"$setOnInsert": bson.M{
			"display_name":        user.DisplayName,
			"created_at":          user.CreatedAt,
			"last_interaction_at": user.LastInteractionAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored entities.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": user.ID}, update, opts).Decode(&stored)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("user %s: %w", user.ID, entities.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return &stored, nil
}

// GetByID implements repositories.UserRepository
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	if id == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	var user entities.User
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entities.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// TouchLastInteraction implements repositories.UserRepository
func (r *UserRepository) TouchLastInteraction(ctx context.Context, id string, at time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_interaction_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last interaction: %w", err)
	}
	if result.MatchedCount == 0 {
		return entities.ErrNotFound
	}
	return nil
}
