package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/worknet/backend/internal/logger"
	"github.com/worknet/backend/internal/models"
	"github.com/worknet/backend/internal/pkg/apperror"
)

// PaymentRepository описывает ledger выплат.
type PaymentRepository interface {
	InsertIfAbsent(ctx context.Context, payment *models.PaymentRelease) (bool, error)
	GetByOrderID(ctx context.Context, orderID primitive.ObjectID) (*models.PaymentRelease, error)
	ListByFreelancer(ctx context.Context, freelancerID primitive.ObjectID) ([]models.PaymentRelease, error)
}

// GigStatsRepository описывает инкремент статистики гига.
type GigStatsRepository interface {
	IncrementStats(ctx context.Context, gigID primitive.ObjectID, orders int64, earning decimal.Decimal) error
}

// SettlementService проводит финансовые побочные эффекты завершения
// заказа: одну запись в ledger выплат и один инкремент статистики гига.
// Идемпотентность держится на уникальном индексе ledger по order_id:
// статистика увеличивается только тем вызовом, который реально вставил
// запись о выплате.
type SettlementService struct {
	payments PaymentRepository
	gigs     GigStatsRepository
}

// NewSettlementService создаёт сервис выплат.
func NewSettlementService(payments PaymentRepository, gigs GigStatsRepository) *SettlementService {
	return &SettlementService{payments: payments, gigs: gigs}
}

// ReleaseFunds выпускает выплату по завершённому заказу. Повторный вызов
// по тому же заказу — no-op без ошибки. Любой сбой хранилища возвращается
// как DEPENDENCY_ERROR: статус заказа к этому моменту уже зафиксирован
// и не откатывается.
func (s *SettlementService) ReleaseFunds(ctx context.Context, order *models.Order) error {
	amount := order.TotalAmount().Round(2)

	payment := &models.PaymentRelease{
		OrderID:      order.ID,
		ClientID:     order.ClientID,
		FreelancerID: order.FreelancerID,
		Amount:       amount.String(),
		Method:       models.PaymentMethodWallet,
		Status:       models.PaymentStatusReleased,
		CreatedAt:    time.Now().UTC(),
	}

	inserted, err := s.payments.InsertIfAbsent(ctx, payment)
	if err != nil {
		return apperror.Dependency(err, "не удалось записать выплату")
	}
	if !inserted {
		logger.Log.WithField("order_id", order.ID.Hex()).
			Info("settlement service: выплата по заказу уже проведена")
		return nil
	}

	if err := s.gigs.IncrementStats(ctx, order.GigID, 1, amount); err != nil {
		// Выплата записана, статистика — нет: возвращаем DEPENDENCY_ERROR,
		// расхождение закрывается сверкой по ledger.
		return apperror.Dependency(err, "выплата записана, но статистика гига не обновлена")
	}
	return nil
}

// GetPayment возвращает запись о выплате по заказу.
func (s *SettlementService) GetPayment(ctx context.Context, orderID primitive.ObjectID) (*models.PaymentRelease, error) {
	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeNotFound, "выплата по заказу не найдена")
	}
	return payment, nil
}

// ListPayments возвращает выплаты фрилансера.
func (s *SettlementService) ListPayments(ctx context.Context, freelancerID primitive.ObjectID) ([]models.PaymentRelease, error) {
	return s.payments.ListByFreelancer(ctx, freelancerID)
}
