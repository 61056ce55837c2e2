package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/worknet/backend/internal/db"
	"github.com/worknet/backend/internal/models"
	"github.com/worknet/backend/internal/pkg/apperror"
)

type GigRepository struct {
	coll *mongo.Collection
}

func NewGigRepository(database *mongo.Database) *GigRepository {
	return &GigRepository{coll: database.Collection(db.CollectionGigs)}
}

// GetByID возвращает гиг по идентификатору.
func (r *GigRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Gig, error) {
	var gig models.Gig
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&gig)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.ErrGigNotFound
		}
		return nil, fmt.Errorf("gig repository: get by id %w", err)
	}
	return &gig, nil
}

// IncrementStats атомарно увеличивает счётчики гига. Суммы хранятся как
// Decimal128, чтобы $inc не накапливал двоичную погрешность.
func (r *GigRepository) IncrementStats(ctx context.Context, gigID primitive.ObjectID, orders int64, earning decimal.Decimal) error {
	amount, err := primitive.ParseDecimal128(earning.String())
	if err != nil {
		return fmt.Errorf("gig repository: parse amount %w", err)
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": gigID}, bson.M{
		"$inc": bson.M{
			"total_orders":  orders,
			"total_earning": amount,
		},
	})
	if err != nil {
		return fmt.Errorf("gig repository: increment stats %w", err)
	}
	if res.MatchedCount == 0 {
		return apperror.ErrGigNotFound
	}
	return nil
}
