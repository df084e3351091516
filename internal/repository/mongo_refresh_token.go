package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRefreshTokenRepository keeps admin sessions in the refresh_tokens collection
type MongoRefreshTokenRepository struct {
	collection *mongo.Collection
}

// NewMongoRefreshTokenRepository creates the repository and its indexes.
// Expired sessions are dropped by the TTL index on expires_at.
func NewMongoRefreshTokenRepository(db *mongo.Database) *MongoRefreshTokenRepository {
	collection := db.Collection("refresh_tokens")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "admin_id", Value: 1}, {Key: "revoked_at", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		log.Printf("[Auth] failed to create refresh token indexes: %v", err)
	}

	return &MongoRefreshTokenRepository{collection: collection}
}

// Create stores a new session
func (r *MongoRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = primitive.NewObjectID().Hex()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// FindByHash returns the session with the given token hash, revoked or not
func (r *MongoRefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := r.collection.FindOne(ctx, bson.M{"token_hash": hash}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Rotate spends oldHash and stores next. The conditional update makes two
// concurrent refreshes with the same token produce one winner.
func (r *MongoRefreshTokenRepository) Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken, at time.Time) error {
	if next.ID == "" {
		next.ID = primitive.NewObjectID().Hex()
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"token_hash": oldHash, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at, "replaced_by": next.ID}},
	)
	if err != nil {
		return fmt.Errorf("failed to revoke rotated token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrConflict
	}

	next.CreatedAt = at
	return r.Create(ctx, next)
}

// Revoke ends one session (logout). Unknown hashes are ignored.
func (r *MongoRefreshTokenRepository) Revoke(ctx context.Context, hash string, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"token_hash": hash, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at}},
	)
	return err
}

// RevokeAllForAdmin ends every live session of an admin and returns how many there were
func (r *MongoRefreshTokenRepository) RevokeAllForAdmin(ctx context.Context, adminID string, at time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"admin_id": adminID, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
