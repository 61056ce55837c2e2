package models

// OrderStatus константы статусов заказов
const (
	OrderStatusPending           = "pending"
	OrderStatusAccepted          = "accepted"
	OrderStatusInProgress        = "in_progress"
	OrderStatusDelivered         = "delivered"
	OrderStatusRevisionRequested = "revision_requested"
	OrderStatusCompleted         = "completed"
	OrderStatusDisputed          = "disputed"
	OrderStatusResolved          = "resolved"
	OrderStatusCancelled         = "cancelled"
	OrderStatusRejected          = "rejected"
)

// TimelineAction константы действий в timeline заказа
const (
	TimelineActionCreated           = "order_created"
	TimelineActionConfirmed         = "order_confirmed"
	TimelineActionStarted           = "order_started"
	TimelineActionDelivered         = "order_delivered"
	TimelineActionRevisionRequested = "revision_requested"
	TimelineActionCompleted         = "order_completed"
	TimelineActionCancelled         = "order_cancelled"
	TimelineActionRejected          = "order_rejected"
	TimelineActionDisputed          = "order_disputed"
	TimelineActionDisputeResolved   = "dispute_resolved"
	TimelineActionDeadlineExtended  = "deadline_extended"
	TimelineActionRequirementAdded  = "requirement_added"
)

// Role константы ролей пользователей
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// ValidOrderStatuses список валидных статусов заказов
var ValidOrderStatuses = map[string]struct{}{
	OrderStatusPending:           {},
	OrderStatusAccepted:          {},
	OrderStatusInProgress:        {},
	OrderStatusDelivered:         {},
	OrderStatusRevisionRequested: {},
	OrderStatusCompleted:         {},
	OrderStatusDisputed:          {},
	OrderStatusResolved:          {},
	OrderStatusCancelled:         {},
	OrderStatusRejected:          {},
}

// TerminalOrderStatuses статусы, из которых заказ больше не переходит.
var TerminalOrderStatuses = map[string]struct{}{
	OrderStatusCompleted: {},
	OrderStatusResolved:  {},
	OrderStatusCancelled: {},
	OrderStatusRejected:  {},
}

// ValidRoles список валидных ролей
var ValidRoles = map[string]struct{}{
	RoleClient:     {},
	RoleFreelancer: {},
	RoleAdmin:      {},
}
