package service

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/worknet/backend/internal/logger"
	"github.com/worknet/backend/internal/models"
	"github.com/worknet/backend/internal/pkg/apperror"
	"github.com/worknet/backend/internal/repository"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

// memOrderRepo — потокобезопасное хранилище заказов в памяти с той же
// семантикой условной записи, что у настоящего репозитория.
type memOrderRepo struct {
	mu           sync.Mutex
	orders       map[primitive.ObjectID]*models.Order
	failTimeline bool
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[primitive.ObjectID]*models.Order)}
}

func (r *memOrderRepo) Insert(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order.ID = primitive.NewObjectID()
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, apperror.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *memOrderRepo) UpdateIfStatus(_ context.Context, id primitive.ObjectID, expectedStatus string, patch repository.OrderPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.Status != expectedStatus {
		return false, nil
	}

	if patch.Status != "" {
		order.Status = patch.Status
	}
	for field, value := range patch.Set {
		switch field {
		case "started_at":
			t := value.(time.Time)
			order.StartedAt = &t
		case "expected_delivery":
			t := value.(time.Time)
			order.ExpectedDelivery = &t
		case "delivered_at":
			t := value.(time.Time)
			order.DeliveredAt = &t
		case "completed_at":
			t := value.(time.Time)
			order.CompletedAt = &t
		case "cancelled_at":
			t := value.(time.Time)
			order.CancelledAt = &t
		case "cancel_reason":
			s := value.(string)
			order.CancelReason = &s
		case "reject_reason":
			s := value.(string)
			order.RejectReason = &s
		}
	}
	order.DeliveryFiles = append(order.DeliveryFiles, patch.DeliveryFiles...)
	if patch.Requirement != nil {
		order.Requirements = append(order.Requirements, *patch.Requirement)
	}
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *memOrderRepo) AppendTimeline(_ context.Context, id primitive.ObjectID, entry models.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTimeline {
		return fmt.Errorf("timeline unavailable")
	}
	order, ok := r.orders[id]
	if !ok {
		return apperror.ErrOrderNotFound
	}
	order.Timeline = append(order.Timeline, entry)
	return nil
}

func (r *memOrderRepo) ListByClient(_ context.Context, clientID primitive.ObjectID) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.ClientID == clientID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListByFreelancer(_ context.Context, freelancerID primitive.ObjectID) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.FreelancerID == freelancerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListActive(_ context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if (o.ClientID == userID || o.FreelancerID == userID) && !o.IsTerminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memOrderRepo) actions(id primitive.ObjectID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var actions []string
	for _, e := range r.orders[id].Timeline {
		actions = append(actions, e.Action)
	}
	return actions
}

// memGigRepo хранит гиги и их счётчики в памяти. Заработок ведётся как
// decimal и конвертируется в Decimal128 при чтении.
type memGigRepo struct {
	mu      sync.Mutex
	gigs    map[primitive.ObjectID]*models.Gig
	earning map[primitive.ObjectID]decimal.Decimal
}

func newMemGigRepo() *memGigRepo {
	return &memGigRepo{
		gigs:    make(map[primitive.ObjectID]*models.Gig),
		earning: make(map[primitive.ObjectID]decimal.Decimal),
	}
}

func (r *memGigRepo) add(freelancerID primitive.ObjectID, active bool) primitive.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := primitive.NewObjectID()
	r.gigs[id] = &models.Gig{ID: id, FreelancerID: freelancerID, IsActive: active}
	r.earning[id] = decimal.Zero
	return id
}

func (r *memGigRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Gig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gig, ok := r.gigs[id]
	if !ok {
		return nil, apperror.ErrGigNotFound
	}
	cp := *gig
	total, err := primitive.ParseDecimal128(r.earning[id].String())
	if err != nil {
		return nil, err
	}
	cp.TotalEarning = total
	return &cp, nil
}

func (r *memGigRepo) IncrementStats(_ context.Context, gigID primitive.ObjectID, orders int64, earning decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gig, ok := r.gigs[gigID]
	if !ok {
		return apperror.ErrGigNotFound
	}
	gig.TotalOrders += orders
	r.earning[gigID] = r.earning[gigID].Add(earning)
	return nil
}

// memPaymentRepo повторяет семантику уникального индекса по order_id.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[primitive.ObjectID]*models.PaymentRelease
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[primitive.ObjectID]*models.PaymentRelease)}
}

func (r *memPaymentRepo) InsertIfAbsent(_ context.Context, payment *models.PaymentRelease) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.OrderID]; ok {
		return false, nil
	}
	payment.ID = primitive.NewObjectID()
	cp := *payment
	r.payments[payment.OrderID] = &cp
	return true, nil
}

func (r *memPaymentRepo) GetByOrderID(_ context.Context, orderID primitive.ObjectID) (*models.PaymentRelease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[orderID]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *payment
	return &cp, nil
}

func (r *memPaymentRepo) ListByFreelancer(_ context.Context, freelancerID primitive.ObjectID) ([]models.PaymentRelease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentRelease
	for _, p := range r.payments {
		if p.FreelancerID == freelancerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// env — полный движок на in-memory хранилищах.
type env struct {
	orders     *memOrderRepo
	gigs       *memGigRepo
	payments   *memPaymentRepo
	svc        *OrderService
	client     Actor
	freelancer Actor
	admin      Actor
	gigID      primitive.ObjectID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		orders:     newMemOrderRepo(),
		gigs:       newMemGigRepo(),
		payments:   newMemPaymentRepo(),
		client:     Actor{ID: primitive.NewObjectID(), Role: models.RoleClient},
		freelancer: Actor{ID: primitive.NewObjectID(), Role: models.RoleFreelancer},
		admin:      Actor{ID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
	e.gigID = e.gigs.add(e.freelancer.ID, true)
	settlement := NewSettlementService(e.payments, e.gigs)
	e.svc = NewOrderService(e.orders, e.gigs, settlement)
	return e
}

func (e *env) createOrder(t *testing.T, price string, quantity int) *models.Order {
	t.Helper()
	order, err := e.svc.CreateOrder(context.Background(), CreateOrderInput{
		ClientID:     e.client.ID,
		GigID:        e.gigID.Hex(),
		FreelancerID: e.freelancer.ID.Hex(),
		Price:        price,
		Quantity:     quantity,
	})
	require.NoError(t, err)
	return order
}

// advanceTo прогоняет заказ по happy path до нужного статуса.
func (e *env) advanceTo(t *testing.T, orderID primitive.ObjectID, target string) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		status string
		apply  func() error
	}{
		{models.OrderStatusAccepted, func() error { return e.svc.Confirm(ctx, orderID, e.client) }},
		{models.OrderStatusInProgress, func() error { return e.svc.Start(ctx, orderID, e.freelancer, "2026-10-01") }},
		{models.OrderStatusDelivered, func() error {
			return e.svc.Deliver(ctx, orderID, e.freelancer, []DeliveryFileInput{{FileURL: "https://cdn.worknet.io/result.zip", FileName: "result.zip"}}, "")
		}},
	}
	for _, step := range steps {
		require.NoError(t, step.apply())
		if step.status == target {
			return
		}
	}
	t.Fatalf("unreachable target status %s", target)
}

func (e *env) getOrder(t *testing.T, id primitive.ObjectID) *models.Order {
	t.Helper()
	order, err := e.orders.GetByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestOrderService_HappyPathReleasesFundsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.createOrder(t, "120.50", 3)
	assert.Equal(t, models.OrderStatusPending, order.Status)

	e.advanceTo(t, order.ID, models.OrderStatusDelivered)
	require.NoError(t, e.svc.Complete(ctx, order.ID, e.client))

	final := e.getOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusCompleted, final.Status)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.DeliveredAt)
	assert.NotNil(t, final.CompletedAt)
	assert.Len(t, final.DeliveryFiles, 1)

	// Выплата ровно одна, сумма = цена × количество.
	payment, err := e.payments.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "361.50", payment.Amount)
	assert.Equal(t, models.PaymentMethodWallet, payment.Method)
	assert.Equal(t, models.PaymentStatusReleased, payment.Status)
	assert.Equal(t, e.freelancer.ID, payment.FreelancerID)

	gig, err := e.gigs.GetByID(ctx, e.gigID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gig.TotalOrders)
	assert.Equal(t, "361.50", gig.TotalEarning.String())

	assert.Equal(t, []string{
		models.TimelineActionCreated,
		models.TimelineActionConfirmed,
		models.TimelineActionStarted,
		models.TimelineActionDelivered,
		models.TimelineActionCompleted,
	}, e.orders.actions(order.ID))
}

func TestOrderService_RevisionLoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.createOrder(t, "50", 1)
	e.advanceTo(t, order.ID, models.OrderStatusDelivered)

	require.NoError(t, e.svc.RequestRevision(ctx, order.ID, e.client, "шрифт не тот"))
	assert.Equal(t, models.OrderStatusRevisionRequested, e.getOrder(t, order.ID).Status)

	// Из revision_requested фрилансер сдаёт работу повторно.
	require.NoError(t, e.svc.Deliver(ctx, order.ID, e.freelancer,
		[]DeliveryFileInput{{FileURL: "https://cdn.worknet.io/v2.zip", FileName: "v2.zip"}}, "исправлено"))

	final := e.getOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusDelivered, final.Status)
	assert.Len(t, final.DeliveryFiles, 2)

	require.NoError(t, e.svc.Complete(ctx, order.ID, e.client))
	assert.Equal(t, 1, e.payments.count())
}

func TestOrderService_SecondCompleteIsStateError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.createOrder(t, "10", 1)
	e.advanceTo(t, order.ID, models.OrderStatusDelivered)

	require.NoError(t, e.svc.Complete(ctx, order.ID, e.client))
	err := e.svc.Complete(ctx, order.ID, e.client)
	assert.True(t, apperror.IsState(err), "повторное завершение должно быть STATE_ERROR, получено: %v", err)
	assert.Equal(t, 1, e.payments.count())
}

func TestOrderService_ConcurrentCompleteReleasesOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.createOrder(t, "99.99", 2)
	e.advanceTo(t, order.ID, models.OrderStatusDelivered)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.svc.Complete(ctx, order.ID, e.client)
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, stateErrs int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.IsState(err) || apperror.IsConflict(err):
			stateErrs++
		default:
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, stateErrs)
	assert.Equal(t, 1, e.payments.count())

	gig, err := e.gigs.GetByID(ctx, e.gigID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gig.TotalOrders)
	assert.Equal(t, "199.98", gig.TotalEarning.String())
}

func TestOrderService_CancelRoleRules(t *testing.T) {
	ctx := context.Background()

	t.Run("клиент отменяет pending", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		require.NoError(t, e.svc.Cancel(ctx, order.ID, e.client, "передумал"))
		final := e.getOrder(t, order.ID)
		assert.Equal(t, models.OrderStatusCancelled, final.Status)
		require.NotNil(t, final.CancelReason)
		assert.Equal(t, "передумал", *final.CancelReason)
	})

	t.Run("фрилансер не может отменить pending", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		err := e.svc.Cancel(ctx, order.ID, e.freelancer, "")
		assert.True(t, apperror.IsForbidden(err))
	})

	t.Run("клиент отменяет accepted", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		e.advanceTo(t, order.ID, models.OrderStatusAccepted)
		require.NoError(t, e.svc.Cancel(ctx, order.ID, e.client, ""))
	})

	t.Run("фрилансер отменяет in_progress", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		e.advanceTo(t, order.ID, models.OrderStatusInProgress)
		require.NoError(t, e.svc.Cancel(ctx, order.ID, e.freelancer, "не успеваю"))
	})

	t.Run("клиент не может отменить in_progress", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		e.advanceTo(t, order.ID, models.OrderStatusInProgress)
		err := e.svc.Cancel(ctx, order.ID, e.client, "")
		assert.True(t, apperror.IsForbidden(err))
	})

	t.Run("delivered не отменяется никем", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		e.advanceTo(t, order.ID, models.OrderStatusDelivered)
		assert.True(t, apperror.IsState(e.svc.Cancel(ctx, order.ID, e.client, "")))
		assert.True(t, apperror.IsState(e.svc.Cancel(ctx, order.ID, e.freelancer, "")))
	})
}

func TestOrderService_RejectPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	order := e.createOrder(t, "10", 1)
	require.NoError(t, e.svc.Reject(ctx, order.ID, e.freelancer, "занят"))

	final := e.getOrder(t, order.ID)
	assert.Equal(t, models.OrderStatusRejected, final.Status)
	require.NotNil(t, final.RejectReason)
	assert.Equal(t, "занят", *final.RejectReason)
	assert.Contains(t, e.orders.actions(order.ID), models.TimelineActionRejected)

	// Отклонённый заказ терминален.
	assert.True(t, apperror.IsState(e.svc.Confirm(ctx, order.ID, e.client)))
}

func TestOrderService_InvalidTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.createOrder(t, "10", 1)

	// Из pending нельзя ни стартовать, ни сдать, ни завершить.
	assert.True(t, apperror.IsState(e.svc.Start(ctx, order.ID, e.freelancer, "2026-10-01")))
	assert.True(t, apperror.IsState(e.svc.Deliver(ctx, order.ID, e.freelancer,
		[]DeliveryFileInput{{FileURL: "https://x/y.zip"}}, "")))
	assert.True(t, apperror.IsState(e.svc.Complete(ctx, order.ID, e.client)))
	assert.True(t, apperror.IsState(e.svc.Dispute(ctx, order.ID, e.client, "проблема")))

	// Неудачный переход не меняет заказ.
	assert.Equal(t, models.OrderStatusPending, e.getOrder(t, order.ID).Status)
	assert.Equal(t, 1, len(e.getOrder(t, order.ID).Timeline))
}

func TestOrderService_StrangerIsForbidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stranger := Actor{ID: primitive.NewObjectID(), Role: models.RoleClient}

	order := e.createOrder(t, "10", 1)

	assert.True(t, apperror.IsForbidden(e.svc.Confirm(ctx, order.ID, stranger)))

	_, err := e.svc.GetOrder(ctx, order.ID, stranger)
	assert.True(t, apperror.IsForbidden(err))

	// Администратор видит любой заказ.
	got, err := e.svc.GetOrder(ctx, order.ID, e.admin)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestOrderService_DisputeAndResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("resolve completed платит фрилансеру", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "200", 1)
		e.advanceTo(t, order.ID, models.OrderStatusDelivered)
		require.NoError(t, e.svc.Dispute(ctx, order.ID, e.client, "работа не соответствует описанию"))
		assert.Equal(t, models.OrderStatusDisputed, e.getOrder(t, order.ID).Status)

		require.NoError(t, e.svc.ResolveDispute(ctx, order.ID, e.admin, ResolutionCompleted))
		final := e.getOrder(t, order.ID)
		assert.Equal(t, models.OrderStatusCompleted, final.Status)
		assert.NotNil(t, final.CompletedAt)
		assert.Equal(t, 1, e.payments.count())
	})

	t.Run("resolve cancelled без выплаты", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "200", 1)
		e.advanceTo(t, order.ID, models.OrderStatusInProgress)
		require.NoError(t, e.svc.Dispute(ctx, order.ID, e.freelancer, "клиент пропал"))

		require.NoError(t, e.svc.ResolveDispute(ctx, order.ID, e.admin, ResolutionCancelled))
		assert.Equal(t, models.OrderStatusCancelled, e.getOrder(t, order.ID).Status)
		assert.Equal(t, 0, e.payments.count())
	})

	t.Run("resolve resolved терминален без выплаты", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "200", 1)
		e.advanceTo(t, order.ID, models.OrderStatusDelivered)
		require.NoError(t, e.svc.Dispute(ctx, order.ID, e.client, "спор"))

		require.NoError(t, e.svc.ResolveDispute(ctx, order.ID, e.admin, ResolutionResolved))
		assert.Equal(t, models.OrderStatusResolved, e.getOrder(t, order.ID).Status)
		assert.Equal(t, 0, e.payments.count())
		assert.True(t, apperror.IsState(e.svc.Complete(ctx, order.ID, e.client)))
	})

	t.Run("resolve не админом запрещён", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "200", 1)
		e.advanceTo(t, order.ID, models.OrderStatusDelivered)
		require.NoError(t, e.svc.Dispute(ctx, order.ID, e.client, "спор"))

		assert.True(t, apperror.IsForbidden(e.svc.ResolveDispute(ctx, order.ID, e.client, ResolutionCancelled)))
	})

	t.Run("неизвестная резолюция", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "200", 1)
		e.advanceTo(t, order.ID, models.OrderStatusDelivered)
		require.NoError(t, e.svc.Dispute(ctx, order.ID, e.client, "спор"))

		assert.True(t, apperror.IsValidation(e.svc.ResolveDispute(ctx, order.ID, e.admin, "refund")))
	})

	t.Run("спор не открывает посторонний", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "200", 1)
		e.advanceTo(t, order.ID, models.OrderStatusDelivered)
		stranger := Actor{ID: primitive.NewObjectID(), Role: models.RoleClient}
		assert.True(t, apperror.IsForbidden(e.svc.Dispute(ctx, order.ID, stranger, "я против")))
	})
}

func TestOrderService_ExtendDeadline(t *testing.T) {
	ctx := context.Background()

	t.Run("сдвигает дату вперёд", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		e.advanceTo(t, order.ID, models.OrderStatusInProgress)

		before := e.getOrder(t, order.ID).ExpectedDelivery
		require.NotNil(t, before)

		require.NoError(t, e.svc.ExtendDeadline(ctx, order.ID, e.freelancer, 7))

		after := e.getOrder(t, order.ID).ExpectedDelivery
		require.NotNil(t, after)
		assert.Equal(t, before.AddDate(0, 0, 7), *after)
		assert.Contains(t, e.orders.actions(order.ID), models.TimelineActionDeadlineExtended)
	})

	t.Run("до назначения даты — STATE_ERROR", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		assert.True(t, apperror.IsState(e.svc.ExtendDeadline(ctx, order.ID, e.freelancer, 7)))
	})

	t.Run("клиенту запрещено", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		e.advanceTo(t, order.ID, models.OrderStatusInProgress)
		assert.True(t, apperror.IsForbidden(e.svc.ExtendDeadline(ctx, order.ID, e.client, 7)))
	})

	t.Run("валидация дней", func(t *testing.T) {
		e := newEnv(t)
		order := e.createOrder(t, "10", 1)
		assert.True(t, apperror.IsValidation(e.svc.ExtendDeadline(ctx, order.ID, e.freelancer, 0)))
		assert.True(t, apperror.IsValidation(e.svc.ExtendDeadline(ctx, order.ID, e.freelancer, 500)))
	})
}

func TestOrderService_AddRequirement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.createOrder(t, "10", 1)

	require.NoError(t, e.svc.AddRequirement(ctx, order.ID, e.client, "логотип в векторе"))
	require.NoError(t, e.svc.AddRequirement(ctx, order.ID, e.client, "палитра — тёмная"))

	final := e.getOrder(t, order.ID)
	require.Len(t, final.Requirements, 2)
	assert.Equal(t, "логотип в векторе", final.Requirements[0].Text)

	// Фрилансер требования не добавляет.
	assert.True(t, apperror.IsForbidden(e.svc.AddRequirement(ctx, order.ID, e.freelancer, "нет")))

	// После терминального статуса — нельзя.
	require.NoError(t, e.svc.Cancel(ctx, order.ID, e.client, ""))
	assert.True(t, apperror.IsState(e.svc.AddRequirement(ctx, order.ID, e.client, "поздно")))
}

func TestOrderService_CreateOrderValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	base := CreateOrderInput{
		ClientID:     e.client.ID,
		GigID:        e.gigID.Hex(),
		FreelancerID: e.freelancer.ID.Hex(),
		Price:        "10",
		Quantity:     1,
	}

	t.Run("неактивный гиг", func(t *testing.T) {
		in := base
		in.GigID = e.gigs.add(e.freelancer.ID, false).Hex()
		_, err := e.svc.CreateOrder(ctx, in)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("чужой фрилансер", func(t *testing.T) {
		in := base
		in.FreelancerID = primitive.NewObjectID().Hex()
		_, err := e.svc.CreateOrder(ctx, in)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("собственный гиг", func(t *testing.T) {
		in := base
		in.ClientID = e.freelancer.ID
		_, err := e.svc.CreateOrder(ctx, in)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("отрицательная цена", func(t *testing.T) {
		in := base
		in.Price = "-5"
		_, err := e.svc.CreateOrder(ctx, in)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("нулевое количество", func(t *testing.T) {
		in := base
		in.Quantity = 0
		_, err := e.svc.CreateOrder(ctx, in)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("несуществующий гиг", func(t *testing.T) {
		in := base
		in.GigID = primitive.NewObjectID().Hex()
		_, err := e.svc.CreateOrder(ctx, in)
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestOrderService_DeliverValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.createOrder(t, "10", 1)
	e.advanceTo(t, order.ID, models.OrderStatusInProgress)

	err := e.svc.Deliver(ctx, order.ID, e.freelancer, nil, "")
	assert.True(t, apperror.IsValidation(err), "пустой список файлов должен отклоняться")

	err = e.svc.Deliver(ctx, order.ID, e.freelancer, []DeliveryFileInput{{FileURL: " "}}, "")
	assert.True(t, apperror.IsValidation(err))
}

func TestOrderService_TimelineFailureDoesNotBreakWorkflow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.createOrder(t, "10", 1)

	e.orders.failTimeline = true
	require.NoError(t, e.svc.Confirm(ctx, order.ID, e.client))
	assert.Equal(t, models.OrderStatusAccepted, e.getOrder(t, order.ID).Status)
}

func TestOrderService_GetTimelineAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.createOrder(t, "10", 1)
	e.advanceTo(t, order.ID, models.OrderStatusAccepted)

	entries, err := e.svc.GetTimeline(ctx, order.ID, e.freelancer)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.TimelineActionCreated, entries[0].Action)
	assert.Equal(t, models.TimelineActionConfirmed, entries[1].Action)

	stranger := Actor{ID: primitive.NewObjectID(), Role: models.RoleFreelancer}
	_, err = e.svc.GetTimeline(ctx, order.ID, stranger)
	assert.True(t, apperror.IsForbidden(err))
}

func TestOrderService_Listings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first := e.createOrder(t, "10", 1)
	second := e.createOrder(t, "20", 1)
	require.NoError(t, e.svc.Cancel(ctx, second.ID, e.client, ""))

	asClient, asFreelancer, err := e.svc.ListMyOrders(ctx, e.client)
	require.NoError(t, err)
	assert.Len(t, asClient, 2)
	assert.Empty(t, asFreelancer)

	active, err := e.svc.ListActiveOrders(ctx, e.freelancer)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

// TestOrderService_RandomWalkRespectsTransitionTable гоняет случайные
// операции и проверяет два инварианта: статус меняется только по
// допустимым рёбрам, а выплата существует тогда и только тогда, когда
// заказ дошёл до completed.
func TestOrderService_RandomWalkRespectsTransitionTable(t *testing.T) {
	allowedEdges := map[string]map[string]bool{
		models.OrderStatusPending:           {models.OrderStatusAccepted: true, models.OrderStatusCancelled: true, models.OrderStatusRejected: true},
		models.OrderStatusAccepted:          {models.OrderStatusInProgress: true, models.OrderStatusCancelled: true},
		models.OrderStatusInProgress:        {models.OrderStatusDelivered: true, models.OrderStatusCancelled: true, models.OrderStatusDisputed: true},
		models.OrderStatusDelivered:         {models.OrderStatusRevisionRequested: true, models.OrderStatusCompleted: true, models.OrderStatusDisputed: true},
		models.OrderStatusRevisionRequested: {models.OrderStatusDelivered: true},
		models.OrderStatusDisputed:          {models.OrderStatusCompleted: true, models.OrderStatusCancelled: true, models.OrderStatusResolved: true},
	}

	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 25; run++ {
		e := newEnv(t)
		ctx := context.Background()
		order := e.createOrder(t, "15.25", 2)

		ops := []func() error{
			func() error { return e.svc.Confirm(ctx, order.ID, e.client) },
			func() error { return e.svc.Confirm(ctx, order.ID, e.freelancer) },
			func() error { return e.svc.Start(ctx, order.ID, e.freelancer, "2026-11-01") },
			func() error {
				return e.svc.Deliver(ctx, order.ID, e.freelancer, []DeliveryFileInput{{FileURL: "https://x/r.zip"}}, "")
			},
			func() error { return e.svc.RequestRevision(ctx, order.ID, e.client, "не то") },
			func() error { return e.svc.Complete(ctx, order.ID, e.client) },
			func() error { return e.svc.Cancel(ctx, order.ID, e.client, "") },
			func() error { return e.svc.Cancel(ctx, order.ID, e.freelancer, "") },
			func() error { return e.svc.Reject(ctx, order.ID, e.freelancer, "") },
			func() error { return e.svc.Dispute(ctx, order.ID, e.client, "спор") },
			func() error { return e.svc.ResolveDispute(ctx, order.ID, e.admin, ResolutionCompleted) },
			func() error { return e.svc.ResolveDispute(ctx, order.ID, e.admin, ResolutionCancelled) },
			func() error { return e.svc.ResolveDispute(ctx, order.ID, e.admin, ResolutionResolved) },
		}

		for step := 0; step < 40; step++ {
			before := e.getOrder(t, order.ID).Status
			err := ops[rng.Intn(len(ops))]()
			after := e.getOrder(t, order.ID).Status

			if err != nil {
				require.Equal(t, before, after, "ошибка не должна менять статус (%s)", before)
				continue
			}
			if before != after {
				require.True(t, allowedEdges[before][after],
					"недопустимое ребро %s → %s", before, after)
			}
		}

		final := e.getOrder(t, order.ID).Status
		if final == models.OrderStatusCompleted {
			assert.Equal(t, 1, e.payments.count())
		} else {
			assert.Equal(t, 0, e.payments.count())
		}
	}
}

func TestOrderService_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	err := e.svc.Confirm(ctx, primitive.NewObjectID(), e.client)
	assert.True(t, apperror.IsNotFound(err))

	_, err = e.svc.GetOrder(ctx, primitive.NewObjectID(), e.admin)
	assert.True(t, apperror.IsNotFound(err))
}
