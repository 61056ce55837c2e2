package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/worknet/backend/internal/dto"
	"github.com/worknet/backend/internal/pkg/apperror"
	"github.com/worknet/backend/internal/service"
	"github.com/worknet/backend/internal/validation"
)

// rpcMethod — один метод RPC: разбирает свои параметры и возвращает результат.
type rpcMethod func(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error)

// RPCHandler принимает конверт {"method","params"} и диспетчеризует его
// по статической таблице методов. Неизвестный метод отклоняется без
// обращения к сервисам.
type RPCHandler struct {
	orders     *service.OrderService
	settlement *service.SettlementService
	methods    map[string]rpcMethod
}

// NewRPCHandler создаёт обработчик RPC и заполняет таблицу методов.
func NewRPCHandler(orders *service.OrderService, settlement *service.SettlementService) *RPCHandler {
	h := &RPCHandler{orders: orders, settlement: settlement}
	h.methods = map[string]rpcMethod{
		"create_order":       h.createOrder,
		"confirm_order":      h.confirmOrder,
		"start_order":        h.startOrder,
		"deliver_order":      h.deliverOrder,
		"request_revision":   h.requestRevision,
		"complete_order":     h.completeOrder,
		"cancel_order":       h.cancelOrder,
		"reject_order":       h.rejectOrder,
		"dispute_order":      h.disputeOrder,
		"resolve_dispute":    h.resolveDispute,
		"extend_deadline":    h.extendDeadline,
		"add_requirement":    h.addRequirement,
		"get_order":          h.getOrder,
		"get_timeline":       h.getTimeline,
		"list_my_orders":     h.listMyOrders,
		"list_active_orders": h.listActiveOrders,
		"get_payment":        h.getPayment,
		"list_payments":      h.listPayments,
	}
	return h
}

// Handle — единая точка входа POST /api/rpc.
func (h *RPCHandler) Handle(c *gin.Context) {
	actor, err := CurrentActor(c)
	if err != nil {
		RespondAppError(c, apperror.ErrUnauthorized)
		return
	}

	var req dto.RPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondAppError(c, apperror.Validation("некорректный конверт запроса"))
		return
	}

	method, ok := h.methods[req.Method]
	if !ok {
		c.JSON(http.StatusNotFound, dto.RPCResponse{Error: &dto.RPCError{
			Code:    string(apperror.ErrCodeNotFound),
			Message: "неизвестный метод: " + req.Method,
		}})
		return
	}

	result, err := method(c.Request.Context(), actor, req.Params)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondResult(c, result)
}

func (h *RPCHandler) createOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.CreateOrderParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	return h.orders.CreateOrder(ctx, service.CreateOrderInput{
		ClientID:     actor.ID,
		GigID:        p.GigID,
		FreelancerID: p.FreelancerID,
		Price:        p.Price,
		Quantity:     p.Quantity,
	})
}

func (h *RPCHandler) confirmOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.OrderIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Confirm(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return statusResult("accepted"), nil
}

func (h *RPCHandler) startOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.StartOrderParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Start(ctx, orderID, actor, p.ExpectedDelivery); err != nil {
		return nil, err
	}
	return statusResult("in_progress"), nil
}

func (h *RPCHandler) deliverOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.DeliverOrderParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	files := make([]service.DeliveryFileInput, 0, len(p.Files))
	for _, f := range p.Files {
		files = append(files, service.DeliveryFileInput{FileURL: f.FileURL, FileName: f.FileName})
	}
	if err := h.orders.Deliver(ctx, orderID, actor, files, p.Message); err != nil {
		return nil, err
	}
	return statusResult("delivered"), nil
}

func (h *RPCHandler) requestRevision(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.ReasonParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.RequestRevision(ctx, orderID, actor, p.Reason); err != nil {
		return nil, err
	}
	return statusResult("revision_requested"), nil
}

func (h *RPCHandler) completeOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.OrderIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Complete(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return statusResult("completed"), nil
}

func (h *RPCHandler) cancelOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.ReasonParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Cancel(ctx, orderID, actor, p.Reason); err != nil {
		return nil, err
	}
	return statusResult("cancelled"), nil
}

func (h *RPCHandler) rejectOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.ReasonParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Reject(ctx, orderID, actor, p.Reason); err != nil {
		return nil, err
	}
	return statusResult("rejected"), nil
}

func (h *RPCHandler) disputeOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.DisputeParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Dispute(ctx, orderID, actor, p.Message); err != nil {
		return nil, err
	}
	return statusResult("disputed"), nil
}

func (h *RPCHandler) resolveDispute(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.ResolveDisputeParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.ResolveDispute(ctx, orderID, actor, p.Resolution); err != nil {
		return nil, err
	}
	return statusResult(p.Resolution), nil
}

func (h *RPCHandler) extendDeadline(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.ExtendDeadlineParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.ExtendDeadline(ctx, orderID, actor, p.AdditionalDays); err != nil {
		return nil, err
	}
	return gin.H{"extended": true}, nil
}

func (h *RPCHandler) addRequirement(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.RequirementParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	if err := h.orders.AddRequirement(ctx, orderID, actor, p.Text); err != nil {
		return nil, err
	}
	return gin.H{"added": true}, nil
}

func (h *RPCHandler) getOrder(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.OrderIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	return h.orders.GetOrder(ctx, orderID, actor)
}

func (h *RPCHandler) getTimeline(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.OrderIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	return h.orders.GetTimeline(ctx, orderID, actor)
}

func (h *RPCHandler) listMyOrders(ctx context.Context, actor service.Actor, _ json.RawMessage) (interface{}, error) {
	asClient, asFreelancer, err := h.orders.ListMyOrders(ctx, actor)
	if err != nil {
		return nil, err
	}
	return gin.H{"as_client": asClient, "as_freelancer": asFreelancer}, nil
}

func (h *RPCHandler) listActiveOrders(ctx context.Context, actor service.Actor, _ json.RawMessage) (interface{}, error) {
	return h.orders.ListActiveOrders(ctx, actor)
}

func (h *RPCHandler) getPayment(ctx context.Context, actor service.Actor, params json.RawMessage) (interface{}, error) {
	var p dto.OrderIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	orderID, err := validation.ObjectID("order_id", p.OrderID)
	if err != nil {
		return nil, err
	}
	// Доступ проверяется через заказ: чужая выплата не видна.
	if _, err := h.orders.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return h.settlement.GetPayment(ctx, orderID)
}

func (h *RPCHandler) listPayments(ctx context.Context, actor service.Actor, _ json.RawMessage) (interface{}, error) {
	return h.settlement.ListPayments(ctx, actor.ID)
}

func unmarshalParams(params json.RawMessage, dst interface{}) error {
	if len(params) == 0 {
		return apperror.Validation("params обязательны для этого метода")
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return apperror.Validation("некорректные params: " + err.Error())
	}
	return nil
}

func statusResult(status string) gin.H {
	return gin.H{"status": status}
}
