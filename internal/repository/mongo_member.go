package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/brothersgym/backoffice/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMemberRepository implements domain.MemberRepository
type MongoMemberRepository struct {
	collection *mongo.Collection
}

// memberDocument is the stored shape of a member; only the id differs from domain.Member
type memberDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	MemberCode string             `bson:"member_code"`
	FullName   string             `bson:"full_name"`
	Phone      string             `bson:"phone"`
	Gender     string             `bson:"gender"`
	Avatar     string             `bson:"avatar"`
	IsActive   bool               `bson:"is_active"`
	Payments   []domain.Payment   `bson:"payments"`
	Membership *domain.Membership `bson:"membership,omitempty"`
	IsDeleted  bool               `bson:"is_deleted"`
	DeletedAt  *time.Time         `bson:"deleted_at,omitempty"`
	Version    int64              `bson:"version"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

func NewMongoMemberRepository(db *mongo.Database) *MongoMemberRepository {
	coll := db.Collection("members")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Phone is unique among live members only, so a soft-deleted member's
	// number can be registered again
	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_deleted": false}),
		},
		{
			Keys:    bson.D{{Key: "member_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "is_deleted", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "membership.end_date", Value: 1}}},
	})

	return &MongoMemberRepository{
		collection: coll,
	}
}

func (r *MongoMemberRepository) Create(ctx context.Context, member *domain.Member) error {
	now := time.Now()
	member.CreatedAt = now
	member.UpdatedAt = now
	member.Version = 1
	if member.Payments == nil {
		member.Payments = []domain.Payment{}
	}

	objID := primitive.NewObjectID()
	doc := memberDocument{
		ID:         objID,
		MemberCode: member.MemberCode,
		FullName:   member.FullName,
		Phone:      member.Phone,
		Gender:     member.Gender,
		Avatar:     member.Avatar,
		IsActive:   member.IsActive,
		Payments:   member.Payments,
		Membership: member.Membership,
		Version:    member.Version,
		CreatedAt:  member.CreatedAt,
		UpdatedAt:  member.UpdatedAt,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "member_code") {
				return fmt.Errorf("member code collision: %w", domain.ErrConflict)
			}
			return domain.ErrDuplicatePhone
		}
		return fmt.Errorf("failed to create member: %w", err)
	}
	member.ID = objID.Hex()
	return nil
}

func (r *MongoMemberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": objID, "is_deleted": false})
}

func (r *MongoMemberRepository) GetByCode(ctx context.Context, code string) (*domain.Member, error) {
	return r.findOne(ctx, bson.M{"member_code": code, "is_deleted": false})
}

func (r *MongoMemberRepository) findOne(ctx context.Context, filter bson.M) (*domain.Member, error) {
	var doc memberDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return mapDocumentToMember(&doc), nil
}

func (r *MongoMemberRepository) List(ctx context.Context, filter domain.MemberFilter) ([]*domain.Member, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = domain.MembersPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, buildMemberFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer cursor.Close(ctx)

	members := []*domain.Member{}
	for cursor.Next(ctx) {
		var doc memberDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		members = append(members, mapDocumentToMember(&doc))
	}
	return members, cursor.Err()
}

func (r *MongoMemberRepository) Count(ctx context.Context, filter domain.MemberFilter) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, buildMemberFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

func (r *MongoMemberRepository) Update(ctx context.Context, id string, version int64, update domain.MemberUpdate) error {
	set := bson.M{"updated_at": time.Now()}
	if update.FullName != nil {
		set["full_name"] = *update.FullName
	}
	if update.Phone != nil {
		set["phone"] = *update.Phone
	}
	if update.Gender != nil {
		set["gender"] = *update.Gender
	}
	if update.Avatar != nil {
		set["avatar"] = *update.Avatar
	}
	if update.IsActive != nil {
		set["is_active"] = *update.IsActive
	}
	if update.Membership != nil {
		set["membership"] = update.Membership
	}
	if update.Payment != nil {
		set[fmt.Sprintf("payments.%d", update.Payment.Index)] = update.Payment.Payment
	}

	return r.guardedUpdate(ctx, id, version, bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	})
}

// ApplyRenewal stores the renewed period and appends its payment in a single write
func (r *MongoMemberRepository) ApplyRenewal(ctx context.Context, id string, version int64, membership domain.Membership, payment domain.Payment) error {
	return r.guardedUpdate(ctx, id, version, bson.M{
		"$set": bson.M{
			"membership": membership,
			"is_active":  true,
			"updated_at": time.Now(),
		},
		"$push": bson.M{"payments": payment},
		"$inc":  bson.M{"version": 1},
	})
}

// guardedUpdate applies update only if the stored version still matches
func (r *MongoMemberRepository) guardedUpdate(ctx context.Context, id string, version int64, update bson.M) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{
		"_id":        objID,
		"version":    version,
		"is_deleted": false,
	}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicatePhone
		}
		return fmt.Errorf("failed to update member: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Distinguish a missing member from a lost race
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": objID, "is_deleted": false})
	if err != nil {
		return fmt.Errorf("failed to check member: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *MongoMemberRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "is_deleted": false},
		bson.M{
			"$set": bson.M{
				"is_deleted": true,
				"deleted_at": at,
				"is_active":  false,
				"updated_at": at,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoMemberRepository) ForEach(ctx context.Context, fn func(*domain.Member) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"is_deleted": false}, opts)
	if err != nil {
		return fmt.Errorf("failed to scan members: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc memberDocument
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		if err := fn(mapDocumentToMember(&doc)); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// SumLatestPayments adds up the most recent payment of every live member created since
func (r *MongoMemberRepository) SumLatestPayments(ctx context.Context, since *time.Time) (float64, error) {
	match := bson.M{"is_deleted": false}
	if since != nil {
		match["created_at"] = bson.M{"$gte": *since}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$project", Value: bson.M{
			"last": bson.M{"$arrayElemAt": bson.A{"$payments.amount", -1}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$last"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total float64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, err
		}
	}
	return result.Total, cursor.Err()
}

// CountByCreatedMonth buckets live members created since by YYYY-MM in loc
func (r *MongoMemberRepository) CountByCreatedMonth(ctx context.Context, since time.Time, loc *time.Location) (map[string]int64, error) {
	tz := "UTC"
	if loc != nil && loc.String() != "Local" {
		tz = loc.String()
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"is_deleted": false,
			"created_at": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   "%Y-%m",
				"date":     "$created_at",
				"timezone": tz,
			}},
			"count": bson.M{"$sum": 1},
		}}},
	}
	return r.countBuckets(ctx, pipeline)
}

func (r *MongoMemberRepository) CountByGender(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"is_deleted": false}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$gender",
			"count": bson.M{"$sum": 1},
		}}},
	}
	return r.countBuckets(ctx, pipeline)
}

func (r *MongoMemberRepository) countBuckets(ctx context.Context, pipeline mongo.Pipeline) (map[string]int64, error) {
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate members: %w", err)
	}
	defer cursor.Close(ctx)

	buckets := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			Key   string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		buckets[row.Key] = row.Count
	}
	return buckets, cursor.Err()
}

// buildMemberFilter translates a MemberFilter into a query on live members.
// Status is evaluated from membership.end_date relative to filter.Now.
func buildMemberFilter(f domain.MemberFilter) bson.M {
	and := bson.A{bson.M{"is_deleted": false}}

	if term := strings.TrimSpace(f.Search); term != "" {
		regex := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		or := bson.A{
			bson.M{"full_name": regex},
			bson.M{"phone": regex},
			bson.M{"member_code": regex},
		}
		if objID, err := primitive.ObjectIDFromHex(term); err == nil {
			or = append(or, bson.M{"_id": objID})
		}
		and = append(and, bson.M{"$or": or})
	}

	if f.Status != "" {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		window := now.Add(domain.ExpiringWindowDays * 24 * time.Hour)

		switch f.Status {
		case domain.StatusActive:
			and = append(and, bson.M{"membership.end_date": bson.M{"$gt": window}})
		case domain.StatusExpiring:
			and = append(and, bson.M{"membership.end_date": bson.M{"$gt": now, "$lte": window}})
		case domain.StatusExpired:
			and = append(and, bson.M{"$or": bson.A{
				bson.M{"membership.end_date": bson.M{"$lte": now}},
				bson.M{"membership.end_date": bson.M{"$exists": false}},
			}})
		}
	}

	if f.CreatedSince != nil {
		and = append(and, bson.M{"created_at": bson.M{"$gte": *f.CreatedSince}})
	}
	if f.ActiveOnly {
		and = append(and, bson.M{"is_active": true})
	}
	if f.InactiveOnly {
		and = append(and, bson.M{"is_active": false})
	}

	if len(and) == 1 {
		return and[0].(bson.M)
	}
	return bson.M{"$and": and}
}

func mapDocumentToMember(doc *memberDocument) *domain.Member {
	member := &domain.Member{
		ID:         doc.ID.Hex(),
		MemberCode: doc.MemberCode,
		FullName:   doc.FullName,
		Phone:      doc.Phone,
		Gender:     doc.Gender,
		Avatar:     doc.Avatar,
		IsActive:   doc.IsActive,
		Payments:   doc.Payments,
		Membership: doc.Membership,
		IsDeleted:  doc.IsDeleted,
		DeletedAt:  doc.DeletedAt,
		Version:    doc.Version,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	if member.Payments == nil {
		member.Payments = []domain.Payment{}
	}
	return member
}
