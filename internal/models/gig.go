package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Gig — продаваемая услуга фрилансера. Счётчики total_orders и
// total_earning монотонно растут и изменяются только движком заказов
// при завершении заказа (атомарный $inc).
type Gig struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	FreelancerID primitive.ObjectID   `bson:"freelancer_id" json:"freelancer_id"`
	Title        string               `bson:"title" json:"title"`
	Description  string               `bson:"description,omitempty" json:"description,omitempty"`
	IsActive     bool                 `bson:"is_active" json:"is_active"`
	TotalOrders  int64                `bson:"total_orders" json:"total_orders"`
	TotalEarning primitive.Decimal128 `bson:"total_earning" json:"total_earning"`
	CreatedAt    time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at" json:"updated_at"`
}
