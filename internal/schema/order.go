package schema

import "time"

// OrderRequest is what a strategy hands to the gateway.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Price    float64
	Qty      int64
	Strategy StrategyType
}

// Fill is an execution report routed back to the owning strategy and the allocator.
type Fill struct {
	OrderID   string       `json:"order_id"`
	Symbol    string       `json:"symbol"`
	Side      OrderSide    `json:"side"`
	Price     float64      `json:"price"`
	Qty       int64        `json:"qty"`
	Strategy  StrategyType `json:"strategy"`
	Timestamp time.Time    `json:"timestamp"`
}

// OrderStatus is the venue-reported state of an order.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusPending
	OrderStatusNew
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusPendingCancel
	OrderStatusNotFound
	OrderStatusError
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusNew:
		return "NEW"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusPendingCancel:
		return "PENDING_CANCEL"
	case OrderStatusNotFound:
		return "NOT_FOUND"
	case OrderStatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether a strategy should release the slot tracking this order.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderUpdate carries a status transition for one order.
type OrderUpdate struct {
	OrderID   string       `json:"order_id"`
	Symbol    string       `json:"symbol"`
	Status    OrderStatus  `json:"status"`
	Strategy  StrategyType `json:"strategy"`
	FilledQty int64        `json:"filled_qty"`
	Timestamp time.Time    `json:"timestamp"`
}
