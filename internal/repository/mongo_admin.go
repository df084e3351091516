package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAdminRepository implements domain.AdminRepository
type MongoAdminRepository struct {
	collection *mongo.Collection
}

func NewMongoAdminRepository(db *mongo.Database) *MongoAdminRepository {
	coll := db.Collection("admins")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tokens are sparse: only admins with a pending reset or email change are indexed
	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "password_reset_token", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "email_change_token", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})

	return &MongoAdminRepository{
		collection: coll,
	}
}

func (r *MongoAdminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	admin.CreatedAt = time.Now()
	admin.UpdatedAt = admin.CreatedAt
	admin.Email = normalizeEmail(admin.Email)
	objID := primitive.NewObjectID()

	doc := bson.M{
		"_id":           objID,
		"full_name":     admin.FullName,
		"email":         admin.Email,
		"password_hash": admin.PasswordHash,
		"avatar":        admin.Avatar,
		"role":          admin.Role,
		"is_active":     admin.IsActive,
		"created_at":    admin.CreatedAt,
		"updated_at":    admin.UpdatedAt,
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	admin.ID = objID.Hex()
	return nil
}

func (r *MongoAdminRepository) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": objID})
}

func (r *MongoAdminRepository) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return r.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (r *MongoAdminRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

func (r *MongoAdminRepository) UpdateProfile(ctx context.Context, id string, fullName, avatar string) error {
	return r.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			"full_name":  fullName,
			"avatar":     avatar,
			"updated_at": time.Now(),
		},
	})
}

// UpdatePassword also clears any outstanding reset token
func (r *MongoAdminRepository) UpdatePassword(ctx context.Context, id string, hash string, changedAt time.Time) error {
	return r.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			"password_hash":       hash,
			"password_changed_at": changedAt,
			"updated_at":          time.Now(),
		},
		"$unset": bson.M{
			"password_reset_token":   "",
			"password_reset_expires": "",
		},
	})
}

func (r *MongoAdminRepository) SetResetToken(ctx context.Context, id string, tokenHash string, expires time.Time) error {
	return r.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			"password_reset_token":   tokenHash,
			"password_reset_expires": expires,
			"updated_at":             time.Now(),
		},
	})
}

func (r *MongoAdminRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Admin, error) {
	return r.findOne(ctx, bson.M{
		"password_reset_token":   tokenHash,
		"password_reset_expires": bson.M{"$gt": now},
	})
}

func (r *MongoAdminRepository) SetEmailChange(ctx context.Context, id string, pendingEmail, tokenHash string, expires time.Time) error {
	return r.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			"pending_email":        normalizeEmail(pendingEmail),
			"email_change_token":   tokenHash,
			"email_change_expires": expires,
			"updated_at":           time.Now(),
		},
	})
}

func (r *MongoAdminRepository) ConfirmEmailChange(ctx context.Context, tokenHash string, now time.Time) (*domain.Admin, error) {
	admin, err := r.findOne(ctx, bson.M{
		"email_change_token":   tokenHash,
		"email_change_expires": bson.M{"$gt": now},
	})
	if err != nil {
		return nil, err
	}

	objID, _ := primitive.ObjectIDFromHex(admin.ID)
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$set": bson.M{
			"email":      admin.PendingEmail,
			"updated_at": time.Now(),
		},
		"$unset": bson.M{
			"pending_email":        "",
			"email_change_token":   "",
			"email_change_expires": "",
		},
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to confirm email change: %w", err)
	}

	admin.Email = admin.PendingEmail
	admin.PendingEmail = ""
	admin.EmailChangeToken = ""
	admin.EmailChangeExpires = nil
	return admin, nil
}

func (r *MongoAdminRepository) findOne(ctx context.Context, filter bson.M) (*domain.Admin, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, filter).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return mapBsonToAdmin(raw), nil
}

func (r *MongoAdminRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("failed to update admin: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapBsonToAdmin(raw bson.M) *domain.Admin {
	admin := &domain.Admin{}
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		admin.ID = oid.Hex()
	}
	admin.FullName, _ = raw["full_name"].(string)
	admin.Email, _ = raw["email"].(string)
	admin.PasswordHash, _ = raw["password_hash"].(string)
	admin.Avatar, _ = raw["avatar"].(string)
	admin.Role, _ = raw["role"].(string)
	admin.IsActive, _ = raw["is_active"].(bool)
	admin.PasswordResetToken, _ = raw["password_reset_token"].(string)
	admin.PendingEmail, _ = raw["pending_email"].(string)
	admin.EmailChangeToken, _ = raw["email_change_token"].(string)

	if dt, ok := raw["password_changed_at"].(primitive.DateTime); ok {
		t := dt.Time()
		admin.PasswordChangedAt = &t
	}
	if dt, ok := raw["password_reset_expires"].(primitive.DateTime); ok {
		t := dt.Time()
		admin.PasswordResetExpires = &t
	}
	if dt, ok := raw["email_change_expires"].(primitive.DateTime); ok {
		t := dt.Time()
		admin.EmailChangeExpires = &t
	}
	if dt, ok := raw["created_at"].(primitive.DateTime); ok {
		admin.CreatedAt = dt.Time()
	}
	if dt, ok := raw["updated_at"].(primitive.DateTime); ok {
		admin.UpdatedAt = dt.Time()
	}
	return admin
}
