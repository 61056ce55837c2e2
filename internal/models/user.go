package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User — учётная запись пользователя. Роль определяет, какие операции
// движка заказов ему доступны.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	DisplayName  string             `bson:"display_name" json:"display_name"`
	Role         string             `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
