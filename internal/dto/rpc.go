package dto

import "encoding/json"

// RPCRequest — единый конверт запроса: имя метода и сырые параметры,
// которые разбирает сам метод.
type RPCRequest struct {
	Method string          `json:"method" binding:"required"`
	Params json.RawMessage `json:"params"`
}

// RPCError — тело ошибки в конверте ответа.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RPCResponse — единый конверт ответа: ровно одно из полей заполнено.
type RPCResponse struct {
	Result interface{} `json:"result,omitempty"`
	Error  *RPCError   `json:"error,omitempty"`
}

// Параметры методов заказов.

type CreateOrderParams struct {
	GigID        string `json:"gig_id"`
	FreelancerID string `json:"freelancer_id"`
	Price        string `json:"price"`
	Quantity     int    `json:"quantity"`
}

type OrderIDParams struct {
	OrderID string `json:"order_id"`
}

type StartOrderParams struct {
	OrderID          string `json:"order_id"`
	ExpectedDelivery string `json:"expected_delivery"`
}

type DeliverOrderParams struct {
	OrderID string       `json:"order_id"`
	Files   []FileParams `json:"files"`
	Message string       `json:"message"`
}

type FileParams struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
}

type ReasonParams struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type DisputeParams struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

type ResolveDisputeParams struct {
	OrderID    string `json:"order_id"`
	Resolution string `json:"resolution"`
}

type ExtendDeadlineParams struct {
	OrderID        string `json:"order_id"`
	AdditionalDays int    `json:"additional_days"`
}

type RequirementParams struct {
	OrderID string `json:"order_id"`
	Text    string `json:"text"`
}
