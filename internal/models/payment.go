package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Метод и статус выплаты
const (
	PaymentMethodWallet   = "wallet"
	PaymentStatusReleased = "released"
)

// PaymentRelease — запись ledger о выплате фрилансеру. Создаётся ровно
// один раз при завершении заказа; уникальный индекс по order_id
// защищает от двойной выплаты при гонке.
type PaymentRelease struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID      primitive.ObjectID `bson:"order_id" json:"order_id"`
	ClientID     primitive.ObjectID `bson:"client_id" json:"client_id"`
	FreelancerID primitive.ObjectID `bson:"freelancer_id" json:"freelancer_id"`
	Amount       string             `bson:"amount" json:"amount"`
	Method       string             `bson:"payment_method" json:"payment_method"`
	Status       string             `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
