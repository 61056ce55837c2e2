package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Имена коллекций
const (
	CollectionOrders   = "orders"
	CollectionPayments = "payments"
	CollectionGigs     = "gigs"
	CollectionUsers    = "users"
)

// NewMongo подключается к MongoDB и проверяет соединение.
func NewMongo(ctx context.Context, url string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("mongo: не удалось подключиться: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongo: ping не прошёл: %w", err)
	}

	return client, nil
}

// EnsureIndexes создаёт индексы, на которые опирается движок заказов.
// Уникальный индекс payments.order_id — гарантия «не более одной выплаты
// на заказ» даже при конкурентных завершениях.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	payments := database.Collection(CollectionPayments)
	if _, err := payments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "order_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("mongo: индекс payments.order_id: %w", err)
	}

	users := database.Collection(CollectionUsers)
	if _, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("mongo: индекс users.email: %w", err)
	}

	orders := database.Collection(CollectionOrders)
	if _, err := orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "freelancer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("mongo: индексы orders: %w", err)
	}

	return nil
}
