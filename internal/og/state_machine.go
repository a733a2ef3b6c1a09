package og

import (
	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/yanun0323/errors"
)

// Order holds the gateway's view of an order.
type Order struct {
	ID        string
	Symbol    string
	Side      schema.OrderSide
	Price     float64
	Qty       int64
	LeavesQty int64
	Strategy  schema.StrategyType
	Status    schema.OrderStatus
}

// StateMachine updates orders from request/update/fill events.
type StateMachine struct {
	orders map[string]*Order
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]*Order)}
}

// Order returns the current order state.
func (m *StateMachine) Order(id string) (*Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Len is the number of tracked orders, terminal ones included.
func (m *StateMachine) Len() int {
	return len(m.orders)
}

// Open returns the ids of orders that are not terminal yet.
func (m *StateMachine) Open() []string {
	ids := make([]string, 0, len(m.orders))
	for id, o := range m.orders {
		if !isTerminal(o.Status) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyRequest creates a new order in Pending status.
func (m *StateMachine) ApplyRequest(id string, req schema.OrderRequest) (*Order, error) {
	if id == "" {
		return nil, exception.ErrOrderUnknown
	}
	if _, ok := m.orders[id]; ok {
		return nil, errors.Wrapf(exception.ErrOrderDuplicate, "id: %s", id)
	}
	o := &Order{
		ID:        id,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     req.Price,
		Qty:       req.Qty,
		LeavesQty: req.Qty,
		Strategy:  req.Strategy,
		Status:    schema.OrderStatusPending,
	}
	m.orders[id] = o
	return o, nil
}

// ApplyUpdate moves an order to the reported status.
func (m *StateMachine) ApplyUpdate(u schema.OrderUpdate) (*Order, error) {
	o, ok := m.orders[u.OrderID]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if isTerminal(o.Status) {
		if o.Status == u.Status {
			return o, nil
		}
		return o, exception.ErrOrderInvalidTransition
	}
	switch u.Status {
	case schema.OrderStatusUnknown, schema.OrderStatusNotFound, schema.OrderStatusError:
		return o, exception.ErrOrderInvalidTransition
	case schema.OrderStatusFilled:
		o.LeavesQty = 0
	case schema.OrderStatusPartiallyFilled:
		if u.FilledQty > 0 && u.FilledQty < o.Qty {
			o.LeavesQty = o.Qty - u.FilledQty
		}
	}
	o.Status = u.Status
	return o, nil
}

// ApplyFill updates an order from a fill event.
func (m *StateMachine) ApplyFill(fill schema.Fill) (*Order, error) {
	o, ok := m.orders[fill.OrderID]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if fill.Qty <= 0 {
		return o, exception.ErrOrderInvalidFill
	}
	// a cancel can race the fill it missed
	if isTerminal(o.Status) && o.Status != schema.OrderStatusCancelled {
		return o, exception.ErrOrderInvalidTransition
	}
	leaves := o.LeavesQty - fill.Qty
	if leaves <= 0 {
		o.LeavesQty = 0
		o.Status = schema.OrderStatusFilled
	} else {
		o.LeavesQty = leaves
		o.Status = schema.OrderStatusPartiallyFilled
	}
	return o, nil
}

// Forget drops terminal orders from the table.
func (m *StateMachine) Forget() int {
	n := 0
	for id, o := range m.orders {
		if isTerminal(o.Status) {
			delete(m.orders, id)
			n++
		}
	}
	return n
}

func isTerminal(status schema.OrderStatus) bool {
	return status.IsTerminal()
}
