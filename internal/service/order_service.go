package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/worknet/backend/internal/logger"
	"github.com/worknet/backend/internal/models"
	"github.com/worknet/backend/internal/pkg/apperror"
	"github.com/worknet/backend/internal/repository"
	"github.com/worknet/backend/internal/validation"
)

// OrderRepository описывает взаимодействие движка с хранилищем заказов.
type OrderRepository interface {
	Insert(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expectedStatus string, patch repository.OrderPatch) (bool, error)
	AppendTimeline(ctx context.Context, id primitive.ObjectID, entry models.TimelineEntry) error
	ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]models.Order, error)
	ListByFreelancer(ctx context.Context, freelancerID primitive.ObjectID) ([]models.Order, error)
	ListActive(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
}

// GigReader описывает минимальный контракт каталога гигов для создания заказа.
type GigReader interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Gig, error)
}

// Settlement описывает координатор финансовых побочных эффектов завершения.
type Settlement interface {
	ReleaseFunds(ctx context.Context, order *models.Order) error
}

// Notifier интерфейс для отправки уведомлений участникам заказа.
type Notifier interface {
	BroadcastToUser(userID primitive.ObjectID, event string, data interface{}) error
}

// Actor — аутентифицированный инициатор операции.
type Actor struct {
	ID   primitive.ObjectID
	Role string
}

// Имена операций движка (ключи таблицы переходов).
const (
	actionConfirm         = "confirm"
	actionReject          = "reject"
	actionCancel          = "cancel"
	actionStart           = "start"
	actionDeliver         = "deliver"
	actionRequestRevision = "request_revision"
	actionComplete        = "complete"
	actionDispute         = "dispute"
	actionResolve         = "resolve"
)

// Кто имеет право на переход.
const (
	byClient      = "client"
	byFreelancer  = "freelancer"
	byParticipant = "participant"
	byAdmin       = "admin"
)

// transitionRule — одна ячейка таблицы переходов: целевой статус и роль.
// Для resolve целевой статус определяется резолюцией, поэтому To пуст.
type transitionRule struct {
	To   string
	Role string
}

// transitions — единственный источник правды о допустимых переходах.
// Любая пара (статус, операция) вне таблицы отклоняется как STATE_ERROR,
// несовпадение роли — как FORBIDDEN. Обратного перехода из disputed в
// in_progress здесь сознательно нет.
var transitions = map[string]map[string]transitionRule{
	models.OrderStatusPending: {
		actionConfirm: {To: models.OrderStatusAccepted, Role: byClient},
		actionReject:  {To: models.OrderStatusRejected, Role: byFreelancer},
		actionCancel:  {To: models.OrderStatusCancelled, Role: byClient},
	},
	models.OrderStatusAccepted: {
		actionStart:  {To: models.OrderStatusInProgress, Role: byFreelancer},
		actionCancel: {To: models.OrderStatusCancelled, Role: byClient},
	},
	models.OrderStatusInProgress: {
		actionDeliver: {To: models.OrderStatusDelivered, Role: byFreelancer},
		actionCancel:  {To: models.OrderStatusCancelled, Role: byFreelancer},
		actionDispute: {To: models.OrderStatusDisputed, Role: byParticipant},
	},
	models.OrderStatusDelivered: {
		actionRequestRevision: {To: models.OrderStatusRevisionRequested, Role: byClient},
		actionComplete:        {To: models.OrderStatusCompleted, Role: byClient},
		actionDispute:         {To: models.OrderStatusDisputed, Role: byParticipant},
	},
	models.OrderStatusRevisionRequested: {
		actionDeliver: {To: models.OrderStatusDelivered, Role: byFreelancer},
	},
	models.OrderStatusDisputed: {
		actionResolve: {Role: byAdmin},
	},
}

// Резолюции спора.
const (
	ResolutionCompleted = "completed"
	ResolutionCancelled = "cancelled"
	ResolutionResolved  = "resolved"
)

// OrderService — движок жизненного цикла заказов: проверяет каждый запрос
// перехода против текущего статуса и роли актора, применяет переход
// условной записью, дописывает аудит и запускает финансовые побочные
// эффекты завершения.
type OrderService struct {
	repo       OrderRepository
	gigs       GigReader
	settlement Settlement
	hub        Notifier
}

// NewOrderService создаёт движок заказов.
func NewOrderService(repo OrderRepository, gigs GigReader, settlement Settlement) *OrderService {
	return &OrderService{repo: repo, gigs: gigs, settlement: settlement}
}

// SetHub устанавливает hub для отправки уведомлений участникам.
func (s *OrderService) SetHub(hub Notifier) {
	s.hub = hub
}

// CreateOrderInput описывает входные данные создания заказа.
type CreateOrderInput struct {
	ClientID     primitive.ObjectID
	GigID        string
	FreelancerID string
	Price        string
	Quantity     int
}

// DeliveryFileInput описывает один сдаваемый файл.
type DeliveryFileInput struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
}

// CreateOrder валидирует входные данные и создаёт заказ в статусе pending
// с пустыми коллекциями и записью order_created в timeline.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	gigID, err := validation.ObjectID("gig_id", in.GigID)
	if err != nil {
		return nil, err
	}
	freelancerID, err := validation.ObjectID("freelancer_id", in.FreelancerID)
	if err != nil {
		return nil, err
	}
	price, err := validation.Price(in.Price)
	if err != nil {
		return nil, err
	}
	if err := validation.Quantity(in.Quantity); err != nil {
		return nil, err
	}

	gig, err := s.gigs.GetByID(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if !gig.IsActive {
		return nil, apperror.Validation("гиг неактивен")
	}
	if gig.FreelancerID != freelancerID {
		return nil, apperror.Validation("freelancer_id не совпадает с владельцем гига")
	}
	if in.ClientID == freelancerID {
		return nil, apperror.Validation("нельзя заказать собственный гиг")
	}

	now := time.Now().UTC()
	order := &models.Order{
		GigID:         gigID,
		ClientID:      in.ClientID,
		FreelancerID:  freelancerID,
		Price:         price.String(),
		Quantity:      in.Quantity,
		Status:        models.OrderStatusPending,
		Requirements:  []models.Requirement{},
		DeliveryFiles: []models.DeliveryFile{},
		Timeline:      []models.TimelineEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сохранить заказ")
	}

	s.appendTimeline(ctx, order.ID, models.TimelineActionCreated, &in.ClientID, nil)
	s.notify(order, models.TimelineActionCreated)

	return order, nil
}

// Confirm переводит заказ pending → accepted. Доступно только клиенту заказа.
func (s *OrderService) Confirm(ctx context.Context, orderID primitive.ObjectID, actor Actor) error {
	order, rule, err := s.loadAndCheck(ctx, orderID, actionConfirm, actor)
	if err != nil {
		return err
	}

	return s.applyTransition(ctx, order, repository.OrderPatch{Status: rule.To},
		models.TimelineActionConfirmed, &actor.ID, nil)
}

// Start переводит заказ accepted → in_progress: фрилансер берёт заказ в
// работу и назначает ожидаемую дату сдачи.
func (s *OrderService) Start(ctx context.Context, orderID primitive.ObjectID, actor Actor, expectedDelivery string) error {
	deadline, err := validation.DeliveryDate(expectedDelivery)
	if err != nil {
		return err
	}

	order, rule, err := s.loadAndCheck(ctx, orderID, actionStart, actor)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	patch := repository.OrderPatch{
		Status: rule.To,
		Set: map[string]interface{}{
			"started_at":        now,
			"expected_delivery": deadline,
		},
	}
	return s.applyTransition(ctx, order, patch, models.TimelineActionStarted, &actor.ID, nil)
}

// Deliver переводит заказ in_progress|revision_requested → delivered,
// добавляя файлы к delivery_files. Пустой список файлов отклоняется.
func (s *OrderService) Deliver(ctx context.Context, orderID primitive.ObjectID, actor Actor, files []DeliveryFileInput, message string) error {
	if len(files) == 0 {
		return apperror.Validation("необходимо приложить хотя бы один файл")
	}
	now := time.Now().UTC()
	delivered := make([]models.DeliveryFile, 0, len(files))
	for _, f := range files {
		if err := validation.Required("file_url", f.FileURL); err != nil {
			return err
		}
		if err := validation.Length("file_name", f.FileName, 0, validation.MaxFileNameLength); err != nil {
			return err
		}
		delivered = append(delivered, models.DeliveryFile{
			ID:         uuid.New(),
			FileURL:    f.FileURL,
			FileName:   f.FileName,
			UploadedAt: now,
		})
	}

	order, rule, err := s.loadAndCheck(ctx, orderID, actionDeliver, actor)
	if err != nil {
		return err
	}

	patch := repository.OrderPatch{
		Status:        rule.To,
		Set:           map[string]interface{}{"delivered_at": now},
		DeliveryFiles: delivered,
	}
	var extra map[string]interface{}
	if message != "" {
		extra = map[string]interface{}{"message": message}
	}
	return s.applyTransition(ctx, order, patch, models.TimelineActionDelivered, &actor.ID, extra)
}

// RequestRevision переводит заказ delivered → revision_requested.
// Причина обязательна.
func (s *OrderService) RequestRevision(ctx context.Context, orderID primitive.ObjectID, actor Actor, reason string) error {
	if err := validation.Required("reason", reason); err != nil {
		return err
	}
	if err := validation.Length("reason", reason, 0, validation.MaxReasonLength); err != nil {
		return err
	}

	order, rule, err := s.loadAndCheck(ctx, orderID, actionRequestRevision, actor)
	if err != nil {
		return err
	}

	return s.applyTransition(ctx, order, repository.OrderPatch{Status: rule.To},
		models.TimelineActionRevisionRequested, &actor.ID, map[string]interface{}{"reason": reason})
}

// Complete переводит заказ delivered → completed и ровно один раз
// запускает выплату и инкремент статистики гига. Повторный вызов на уже
// завершённом заказе — STATE_ERROR, а не повторное списание.
func (s *OrderService) Complete(ctx context.Context, orderID primitive.ObjectID, actor Actor) error {
	order, rule, err := s.loadAndCheck(ctx, orderID, actionComplete, actor)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	patch := repository.OrderPatch{
		Status: rule.To,
		Set:    map[string]interface{}{"completed_at": now},
	}
	if err := s.applyTransition(ctx, order, patch, models.TimelineActionCompleted, &actor.ID, nil); err != nil {
		return err
	}

	// Статус уже зафиксирован: ошибка побочных эффектов не откатывает
	// переход, а возвращается как DEPENDENCY_ERROR для сверки.
	if err := s.settlement.ReleaseFunds(ctx, order); err != nil {
		logger.Log.WithError(err).WithField("order_id", order.ID.Hex()).
			Error("order service: заказ завершён, но выплата не проведена")
		return err
	}
	return nil
}

// Cancel отменяет заказ. Клиент может отменить pending/accepted,
// фрилансер — in_progress; всё остальное отклоняется.
func (s *OrderService) Cancel(ctx context.Context, orderID primitive.ObjectID, actor Actor, reason string) error {
	if err := validation.Length("reason", reason, 0, validation.MaxReasonLength); err != nil {
		return err
	}

	order, rule, err := s.loadAndCheck(ctx, orderID, actionCancel, actor)
	if err != nil {
		return err
	}

	patch := repository.OrderPatch{
		Status: rule.To,
		Set: map[string]interface{}{
			"cancelled_at":  time.Now().UTC(),
			"cancel_reason": reason,
		},
	}
	return s.applyTransition(ctx, order, patch, models.TimelineActionCancelled, &actor.ID,
		map[string]interface{}{"reason": reason})
}

// Reject переводит заказ pending → rejected. Причина опциональна.
func (s *OrderService) Reject(ctx context.Context, orderID primitive.ObjectID, actor Actor, reason string) error {
	if err := validation.Length("reason", reason, 0, validation.MaxReasonLength); err != nil {
		return err
	}

	order, rule, err := s.loadAndCheck(ctx, orderID, actionReject, actor)
	if err != nil {
		return err
	}

	patch := repository.OrderPatch{
		Status: rule.To,
		Set:    map[string]interface{}{"reject_reason": reason},
	}
	var extra map[string]interface{}
	if reason != "" {
		extra = map[string]interface{}{"reason": reason}
	}
	return s.applyTransition(ctx, order, patch, models.TimelineActionRejected, &actor.ID, extra)
}

// Dispute открывает спор из in_progress или delivered. Инициировать может
// любая из сторон заказа, сообщение обязательно.
func (s *OrderService) Dispute(ctx context.Context, orderID primitive.ObjectID, actor Actor, message string) error {
	if err := validation.Required("message", message); err != nil {
		return err
	}
	if err := validation.Length("message", message, 0, validation.MaxMessageLength); err != nil {
		return err
	}

	order, rule, err := s.loadAndCheck(ctx, orderID, actionDispute, actor)
	if err != nil {
		return err
	}

	return s.applyTransition(ctx, order, repository.OrderPatch{Status: rule.To},
		models.TimelineActionDisputed, &actor.ID, map[string]interface{}{"message": message})
}

// ResolveDispute закрывает спор решением администратора: completed
// (с выплатой, как при обычном завершении), cancelled или resolved.
func (s *OrderService) ResolveDispute(ctx context.Context, orderID primitive.ObjectID, actor Actor, resolution string) error {
	order, _, err := s.loadAndCheck(ctx, orderID, actionResolve, actor)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	patch := repository.OrderPatch{Set: map[string]interface{}{}}
	switch resolution {
	case ResolutionCompleted:
		patch.Status = models.OrderStatusCompleted
		patch.Set["completed_at"] = now
	case ResolutionCancelled:
		patch.Status = models.OrderStatusCancelled
		patch.Set["cancelled_at"] = now
	case ResolutionResolved:
		patch.Status = models.OrderStatusResolved
	default:
		return apperror.Validation("resolution должен быть completed, cancelled или resolved")
	}

	if err := s.applyTransition(ctx, order, patch, models.TimelineActionDisputeResolved, &actor.ID,
		map[string]interface{}{"resolution": resolution}); err != nil {
		return err
	}

	if resolution == ResolutionCompleted {
		if err := s.settlement.ReleaseFunds(ctx, order); err != nil {
			logger.Log.WithError(err).WithField("order_id", order.ID.Hex()).
				Error("order service: спор закрыт завершением, но выплата не проведена")
			return err
		}
	}
	return nil
}

// ExtendDeadline сдвигает ожидаемую дату сдачи на additionalDays вперёд.
// Доступно фрилансеру и только когда дата уже назначена.
func (s *OrderService) ExtendDeadline(ctx context.Context, orderID primitive.ObjectID, actor Actor, additionalDays int) error {
	if additionalDays < 1 {
		return apperror.Validation("additional_days должен быть не менее 1")
	}
	if additionalDays > validation.MaxDeadlineExtension {
		return apperror.Validation(fmt.Sprintf("additional_days должен быть не более %d", validation.MaxDeadlineExtension))
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.FreelancerID != actor.ID {
		return apperror.Forbidden("только фрилансер заказа может сдвинуть дату сдачи")
	}
	if order.IsTerminal() {
		return apperror.State(fmt.Sprintf("заказ в статусе %s уже не изменяется", order.Status))
	}
	if order.ExpectedDelivery == nil {
		return apperror.State("дата сдачи ещё не назначена")
	}

	newDate := order.ExpectedDelivery.AddDate(0, 0, additionalDays)
	patch := repository.OrderPatch{
		Set: map[string]interface{}{"expected_delivery": newDate},
	}
	return s.applyTransition(ctx, order, patch, models.TimelineActionDeadlineExtended, &actor.ID,
		map[string]interface{}{"new_date": newDate.Format(time.RFC3339), "additional_days": additionalDays})
}

// AddRequirement добавляет требование клиента к незавершённому заказу.
func (s *OrderService) AddRequirement(ctx context.Context, orderID primitive.ObjectID, actor Actor, text string) error {
	if err := validation.Required("text", text); err != nil {
		return err
	}
	if err := validation.Length("text", text, 0, validation.MaxRequirementLength); err != nil {
		return err
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.ClientID != actor.ID {
		return apperror.Forbidden("только клиент заказа может добавлять требования")
	}
	if order.IsTerminal() {
		return apperror.State(fmt.Sprintf("заказ в статусе %s уже не изменяется", order.Status))
	}

	patch := repository.OrderPatch{
		Requirement: &models.Requirement{
			ID:      uuid.New(),
			Text:    text,
			AddedAt: time.Now().UTC(),
		},
	}
	return s.applyTransition(ctx, order, patch, models.TimelineActionRequirementAdded, &actor.ID, nil)
}

// GetOrder возвращает заказ. Доступен сторонам заказа и администраторам.
func (s *OrderService) GetOrder(ctx context.Context, orderID primitive.ObjectID, actor Actor) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actor.ID) && actor.Role != models.RoleAdmin {
		return nil, apperror.Forbidden("заказ доступен только его участникам")
	}
	return order, nil
}

// GetTimeline возвращает аудит заказа с теми же правами, что GetOrder.
func (s *OrderService) GetTimeline(ctx context.Context, orderID primitive.ObjectID, actor Actor) ([]models.TimelineEntry, error) {
	order, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	return order.Timeline, nil
}

// ListMyOrders возвращает заказы, где актор — клиент, и заказы,
// где он фрилансер.
func (s *OrderService) ListMyOrders(ctx context.Context, actor Actor) ([]models.Order, []models.Order, error) {
	asClient, err := s.repo.ListByClient(ctx, actor.ID)
	if err != nil {
		return nil, nil, err
	}
	asFreelancer, err := s.repo.ListByFreelancer(ctx, actor.ID)
	if err != nil {
		return nil, nil, err
	}
	return asClient, asFreelancer, nil
}

// ListActiveOrders возвращает незавершённые заказы актора.
func (s *OrderService) ListActiveOrders(ctx context.Context, actor Actor) ([]models.Order, error) {
	return s.repo.ListActive(ctx, actor.ID)
}

// loadAndCheck читает заказ и проверяет переход против таблицы: сначала
// статус (STATE_ERROR), затем роль актора (FORBIDDEN). Заказ при отказе
// не изменяется.
func (s *OrderService) loadAndCheck(ctx context.Context, orderID primitive.ObjectID, action string, actor Actor) (*models.Order, *transitionRule, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	rule, ok := transitions[order.Status][action]
	if !ok {
		return nil, nil, apperror.State(fmt.Sprintf("операция %s недопустима из статуса %s", action, order.Status))
	}

	switch rule.Role {
	case byClient:
		if order.ClientID != actor.ID {
			return nil, nil, apperror.Forbidden("только клиент заказа может выполнить эту операцию")
		}
	case byFreelancer:
		if order.FreelancerID != actor.ID {
			return nil, nil, apperror.Forbidden("только фрилансер заказа может выполнить эту операцию")
		}
	case byParticipant:
		if !order.IsParticipant(actor.ID) {
			return nil, nil, apperror.Forbidden("операция доступна только участникам заказа")
		}
	case byAdmin:
		if actor.Role != models.RoleAdmin {
			return nil, nil, apperror.Forbidden("операция доступна только администратору")
		}
	}

	return order, &rule, nil
}

// applyTransition применяет переход условной записью «статус всё ещё тот,
// что мы читали». Несовпадение означает конкурентный переход: одна
// перечитка, и если статус изменился — STATE_ERROR проигравшему. После
// успешной записи дописывается timeline и рассылаются уведомления,
// обе ветки best-effort.
func (s *OrderService) applyTransition(ctx context.Context, order *models.Order, patch repository.OrderPatch, action string, userID *primitive.ObjectID, extra map[string]interface{}) error {
	matched, err := s.repo.UpdateIfStatus(ctx, order.ID, order.Status, patch)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось записать переход")
	}

	if !matched {
		fresh, err := s.repo.GetByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if fresh.Status != order.Status {
			return apperror.State(fmt.Sprintf("статус заказа уже изменился на %s", fresh.Status))
		}
		// Статус тот же, но запись не совпала — одна повторная попытка.
		matched, err = s.repo.UpdateIfStatus(ctx, order.ID, order.Status, patch)
		if err != nil {
			return apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось записать переход")
		}
		if !matched {
			return apperror.Conflict("заказ изменяется конкурентно, повторите запрос")
		}
	}

	s.appendTimeline(ctx, order.ID, action, userID, extra)
	s.notify(order, action)
	return nil
}

// appendTimeline дописывает запись аудита. Timeline никогда не ломает
// workflow: ошибка логируется и не возвращается вызывающему.
func (s *OrderService) appendTimeline(ctx context.Context, orderID primitive.ObjectID, action string, userID *primitive.ObjectID, extra map[string]interface{}) {
	entry := models.TimelineEntry{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Extra:     extra,
	}
	if err := s.repo.AppendTimeline(ctx, orderID, entry); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"order_id": orderID.Hex(),
			"action":   action,
		}).Warn("order service: не удалось записать событие в timeline")
	}
}

// notify отправляет событие обеим сторонам заказа, ошибки только логируются.
func (s *OrderService) notify(order *models.Order, event string) {
	if s.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"order_id": order.ID.Hex(),
		"event":    event,
	}
	for _, userID := range []primitive.ObjectID{order.ClientID, order.FreelancerID} {
		if err := s.hub.BroadcastToUser(userID, event, payload); err != nil {
			logger.Log.WithError(err).WithField("order_id", order.ID.Hex()).
				Debug("order service: уведомление не доставлено")
		}
	}
}
