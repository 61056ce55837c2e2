package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order описывает покупку одного гига с собственным жизненным циклом.
// Статус меняется только через операции движка заказов, напрямую статус
// не присваивается. Заказ физически не удаляется.
type Order struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GigID        primitive.ObjectID `bson:"gig_id" json:"gig_id"`
	ClientID     primitive.ObjectID `bson:"client_id" json:"client_id"`
	FreelancerID primitive.ObjectID `bson:"freelancer_id" json:"freelancer_id"`

	// Цена хранится десятичной строкой, арифметика только через decimal.
	Price    string `bson:"price" json:"price"`
	Quantity int    `bson:"quantity" json:"quantity"`

	Status string `bson:"status" json:"status"`

	Requirements  []Requirement   `bson:"requirements" json:"requirements"`
	DeliveryFiles []DeliveryFile  `bson:"delivery_files" json:"delivery_files"`
	Timeline      []TimelineEntry `bson:"timeline" json:"timeline"`

	CancelReason *string `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	RejectReason *string `bson:"reject_reason,omitempty" json:"reject_reason,omitempty"`

	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
	StartedAt        *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	ExpectedDelivery *time.Time `bson:"expected_delivery,omitempty" json:"expected_delivery,omitempty"`
	DeliveredAt      *time.Time `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	CompletedAt      *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelledAt      *time.Time `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
}

// PriceDecimal возвращает цену как decimal. Цена валидируется при создании,
// поэтому ошибка парсинга здесь трактуется как ноль.
func (o *Order) PriceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(o.Price)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// TotalAmount возвращает сумму заказа: цена × количество.
// Сумма всегда вычисляется, отдельно не хранится.
func (o *Order) TotalAmount() decimal.Decimal {
	return o.PriceDecimal().Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// IsParticipant сообщает, является ли пользователь стороной заказа.
func (o *Order) IsParticipant(userID primitive.ObjectID) bool {
	return o.ClientID == userID || o.FreelancerID == userID
}

// IsTerminal сообщает, находится ли заказ в конечном статусе.
func (o *Order) IsTerminal() bool {
	_, ok := TerminalOrderStatuses[o.Status]
	return ok
}

// Requirement — требование клиента к заказу, только добавляется.
type Requirement struct {
	ID      uuid.UUID `bson:"_id" json:"id"`
	Text    string    `bson:"text" json:"text"`
	AddedAt time.Time `bson:"added_at" json:"added_at"`
}

// DeliveryFile — файл, сданный фрилансером при доставке.
type DeliveryFile struct {
	ID         uuid.UUID `bson:"_id" json:"id"`
	FileURL    string    `bson:"file_url" json:"file_url"`
	FileName   string    `bson:"file_name,omitempty" json:"file_name,omitempty"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// TimelineEntry — одна запись аудита внутри заказа. Записи никогда
// не редактируются и не удаляются, порядок — порядок создания.
type TimelineEntry struct {
	ID        uuid.UUID              `bson:"_id" json:"id"`
	Action    string                 `bson:"action" json:"action"`
	UserID    *primitive.ObjectID    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	Extra     map[string]interface{} `bson:"extra,omitempty" json:"extra,omitempty"`
}
