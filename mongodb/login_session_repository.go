package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
)

// LoginSessionRepository is the durable LoginSession store. The unique index
// on code is what makes Save's collision check verify-and-retry rather than
// merely probabilistic.
type LoginSessionRepository struct {
	sessions *mongo.Collection
}

func NewLoginSessionRepository(ctx context.Context, db *mongo.Database) (*LoginSessionRepository, error) {
	coll := db.Collection(LoginSessionsCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	})
	if err != nil {
		return nil, err
	}

	return &LoginSessionRepository{sessions: coll}, nil
}

func (r *LoginSessionRepository) Save(ctx context.Context, session *domain.LoginSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}

	_, err := r.sessions.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return serrors.ErrSessionCodeTaken
		}
		return err
	}

	return nil
}

func (r *LoginSessionRepository) GetByCode(ctx context.Context, code string) (*domain.LoginSession, error) {
	var result domain.LoginSession

	err := r.sessions.FindOne(ctx, bson.M{"code": code}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrSessionNotFound
		}
		return nil, err
	}

	return &result, nil
}

// Consume is the handshake's single critical section: only a document still
// pending and inside its TTL matches the filter, so of any number of
// concurrent confirmations exactly one write succeeds.
func (r *LoginSessionRepository) Consume(ctx context.Context, code, userID string, now time.Time) (*domain.LoginSession, error) {
	filter := bson.M{
		"code":       code,
		"status":     domain.LoginSessionStatusPending,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":        domain.LoginSessionStatusConsumed,
			"bound_user_id": userID,
		},
	}
	opt := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated domain.LoginSession
	err := r.sessions.FindOneAndUpdate(ctx, filter, update, opt).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrSessionNotFound
		}
		return nil, err
	}

	return &updated, nil
}

func (r *LoginSessionRepository) MarkExpired(ctx context.Context, code string) error {
	filter := bson.M{
		"code":   code,
		"status": domain.LoginSessionStatusPending,
	}
	update := bson.M{"$set": bson.M{"status": domain.LoginSessionStatusExpired}}

	// Zero matches means the session already transitioned or never existed;
	// lazy expiry does not care either way.
	_, err := r.sessions.UpdateOne(ctx, filter, update)

	return err
}

func (r *LoginSessionRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	filter := bson.M{"expires_at": bson.M{"$lte": now}}

	_, err := r.sessions.DeleteMany(ctx, filter)

	return err
}

var _ domain.LoginSessionRepository = (*LoginSessionRepository)(nil)
