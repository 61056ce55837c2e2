package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/worknet/backend/internal/db"
	"github.com/worknet/backend/internal/models"
	"github.com/worknet/backend/internal/pkg/apperror"
)

// OrderPatch описывает одно условное изменение заказа. Status — новый
// статус (пустая строка означает «статус не меняется»), Set — дополнительные
// поля, DeliveryFiles и Requirement добавляются в конец соответствующих
// списков. updated_at репозиторий выставляет сам.
type OrderPatch struct {
	Status        string
	Set           map[string]interface{}
	DeliveryFiles []models.DeliveryFile
	Requirement   *models.Requirement
}

type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(database *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: database.Collection(db.CollectionOrders)}
}

// Insert сохраняет новый заказ и проставляет сгенерированный ID.
func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	res, err := r.coll.InsertOne(ctx, order)
	if err != nil {
		return fmt.Errorf("order repository: insert %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = oid
	}
	return nil
}

// GetByID возвращает заказ по идентификатору.
func (r *OrderRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: get by id %w", err)
	}
	return &order, nil
}

// UpdateIfStatus выполняет условную запись: изменение применяется только
// если статус заказа всё ещё равен expectedStatus. Возвращает false, если
// запись не совпала (заказ отсутствует или статус уже изменился) — это
// и есть сериализация переходов по одному заказу.
func (r *OrderRepository) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expectedStatus string, patch OrderPatch) (bool, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Status != "" {
		set["status"] = patch.Status
	}
	for field, value := range patch.Set {
		set[field] = value
	}

	update := bson.M{"$set": set}
	push := bson.M{}
	if len(patch.DeliveryFiles) > 0 {
		push["delivery_files"] = bson.M{"$each": patch.DeliveryFiles}
	}
	if patch.Requirement != nil {
		push["requirements"] = *patch.Requirement
	}
	if len(push) > 0 {
		update["$push"] = push
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id, "status": expectedStatus}, update)
	if err != nil {
		return false, fmt.Errorf("order repository: conditional update %w", err)
	}
	return res.MatchedCount > 0, nil
}

// AppendTimeline добавляет запись аудита в конец timeline.
func (r *OrderRepository) AppendTimeline(ctx context.Context, id primitive.ObjectID, entry models.TimelineEntry) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$push": bson.M{"timeline": entry}})
	if err != nil {
		return fmt.Errorf("order repository: append timeline %w", err)
	}
	if res.MatchedCount == 0 {
		return apperror.ErrOrderNotFound
	}
	return nil
}

// ListByClient возвращает заказы клиента, новые первыми.
func (r *OrderRepository) ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]models.Order, error) {
	return r.list(ctx, bson.M{"client_id": clientID})
}

// ListByFreelancer возвращает заказы фрилансера, новые первыми.
func (r *OrderRepository) ListByFreelancer(ctx context.Context, freelancerID primitive.ObjectID) ([]models.Order, error) {
	return r.list(ctx, bson.M{"freelancer_id": freelancerID})
}

// ListActive возвращает незавершённые заказы, где пользователь — любая из сторон.
func (r *OrderRepository) ListActive(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return r.list(ctx, bson.M{
		"$or": bson.A{bson.M{"client_id": userID}, bson.M{"freelancer_id": userID}},
		"status": bson.M{"$in": bson.A{
			models.OrderStatusPending,
			models.OrderStatusAccepted,
			models.OrderStatusInProgress,
			models.OrderStatusDelivered,
			models.OrderStatusRevisionRequested,
			models.OrderStatusDisputed,
		}},
	})
}

func (r *OrderRepository) list(ctx context.Context, filter bson.M) ([]models.Order, error) {
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("order repository: list %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("order repository: decode list %w", err)
	}
	return orders, nil
}
