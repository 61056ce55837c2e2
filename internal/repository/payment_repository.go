package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/worknet/backend/internal/db"
	"github.com/worknet/backend/internal/models"
)

var ErrPaymentNotFound = errors.New("payment not found")

type PaymentRepository struct {
	coll *mongo.Collection
}

func NewPaymentRepository(database *mongo.Database) *PaymentRepository {
	return &PaymentRepository{coll: database.Collection(db.CollectionPayments)}
}

// InsertIfAbsent вставляет запись о выплате, если по заказу её ещё нет.
// Уникальный индекс по order_id превращает гонку двух завершений в
// duplicate key: проигравший получает false без ошибки.
func (r *PaymentRepository) InsertIfAbsent(ctx context.Context, payment *models.PaymentRelease) (bool, error) {
	res, err := r.coll.InsertOne(ctx, payment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("payment repository: insert %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		payment.ID = oid
	}
	return true, nil
}

// GetByOrderID возвращает выплату по заказу.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID primitive.ObjectID) (*models.PaymentRelease, error) {
	var payment models.PaymentRelease
	err := r.coll.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get by order %w", err)
	}
	return &payment, nil
}

// ListByFreelancer возвращает выплаты фрилансера, новые первыми.
func (r *PaymentRepository) ListByFreelancer(ctx context.Context, freelancerID primitive.ObjectID) ([]models.PaymentRelease, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"freelancer_id": freelancerID})
	if err != nil {
		return nil, fmt.Errorf("payment repository: list %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.PaymentRelease
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("payment repository: decode list %w", err)
	}
	return payments, nil
}
