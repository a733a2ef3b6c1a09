package og

import (
	"sync"
	"time"

	"metahft/internal/order"
	"metahft/internal/schema"
	"metahft/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"
)

// PreTrade vets an order before it is registered. *risk.Guard implements it.
type PreTrade interface {
	Check(req schema.OrderRequest) error
}

// Dispatcher forwards prepared requests to a venue.
type Dispatcher interface {
	Handle(req order.Request) error
}

// GatewayConfig controls the gateway behavior.
type GatewayConfig struct {
	Session           string  `yaml:"session"`
	RatePerSecond     float64 `yaml:"rate_per_second"`
	Burst             int     `yaml:"burst"`
	ResendOnReconnect bool    `yaml:"resend_on_reconnect"`
}

// Gateway assigns order ids, throttles sends and tracks every order it placed.
type Gateway struct {
	cfg      GatewayConfig
	dispatch Dispatcher
	limiter  *rate.Limiter
	guard    PreTrade
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	state     *StateMachine
	pending   map[string]order.Request
	connected bool
	rejected  uint64
}

// NewGateway creates a gateway in front of the dispatcher.
func NewGateway(cfg GatewayConfig, dispatch Dispatcher) *Gateway {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Gateway{
		cfg:       cfg,
		dispatch:  dispatch,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		now:       time.Now,
		newID:     uuid.NewString,
		state:     NewStateMachine(),
		pending:   make(map[string]order.Request),
		connected: true,
	}
}

// WithGuard installs a pre-trade check on every send.
func (g *Gateway) WithGuard(p PreTrade) *Gateway {
	g.guard = p
	return g
}

// Order returns a copy of the tracked order.
func (g *Gateway) Order(id string) (Order, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.state.Order(id)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// OpenOrders is the number of orders still working.
func (g *Gateway) OpenOrders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.state.Open())
}

// Rejected counts sends refused before they reached the venue.
func (g *Gateway) Rejected() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejected
}

// SendOrder validates, throttles and dispatches a new order. It returns the
// assigned order id and whether the venue accepted the hand-off.
func (g *Gateway) SendOrder(req schema.OrderRequest) (string, bool) {
	if err := validateRequest(req); err != nil {
		logs.Errorf("[%s] invalid order request, err: %+v", g.cfg.Session, err)
		return "", false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		g.rejected++
		logs.Warnf("[%s] %s %s %d@%.1f dropped, err: %v", g.cfg.Session, req.Strategy, req.Side, req.Qty, req.Price, exception.ErrGatewayDisconnected)
		return "", false
	}
	if g.guard != nil {
		if err := g.guard.Check(req); err != nil {
			g.rejected++
			logs.Warnf("[%s] %s %s %d@%.1f dropped, err: %v", g.cfg.Session, req.Strategy, req.Side, req.Qty, req.Price, err)
			return "", false
		}
	}
	if !g.limiter.AllowN(g.now(), 1) {
		g.rejected++
		logs.Warnf("[%s] %s %s %d@%.1f dropped, err: %v", g.cfg.Session, req.Strategy, req.Side, req.Qty, req.Price, exception.ErrOrderRateLimited)
		return "", false
	}

	id := g.newID()
	if _, err := g.state.ApplyRequest(id, req); err != nil {
		logs.Errorf("[%s] register order %s, err: %+v", g.cfg.Session, id, err)
		return "", false
	}
	r := order.Request{Action: order.ActionPlace, OrderID: id, Order: req, Timestamp: g.now()}
	if err := g.dispatch.Handle(r); err != nil {
		g.rejected++
		_, _ = g.state.ApplyUpdate(schema.OrderUpdate{OrderID: id, Status: schema.OrderStatusRejected})
		logs.Warnf("[%s] dispatch order %s, err: %+v", g.cfg.Session, id, err)
		return "", false
	}
	g.pending[id] = r
	return id, true
}

// CancelOrder asks the venue to cancel a working order.
func (g *Gateway) CancelOrder(orderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.state.Order(orderID)
	if !ok || isTerminal(o.Status) {
		return false
	}
	if !g.connected {
		return false
	}
	r := order.Request{Action: order.ActionCancel, OrderID: orderID, Order: orderRequest(o), Timestamp: g.now()}
	if err := g.dispatch.Handle(r); err != nil {
		logs.Warnf("[%s] dispatch cancel %s, err: %+v", g.cfg.Session, orderID, err)
		return false
	}
	if o.Status != schema.OrderStatusPending {
		o.Status = schema.OrderStatusPendingCancel
	}
	return true
}

// OnUpdate applies a venue status update.
func (g *Gateway) OnUpdate(u schema.OrderUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, err := g.state.ApplyUpdate(u)
	if err != nil {
		return errors.Wrapf(err, "apply update %s %s", u.OrderID, u.Status)
	}
	if isTerminal(o.Status) {
		delete(g.pending, u.OrderID)
	}
	return nil
}

// OnFill applies an execution report.
func (g *Gateway) OnFill(fill schema.Fill) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, err := g.state.ApplyFill(fill)
	if err != nil {
		return errors.Wrapf(err, "apply fill %s qty %d", fill.OrderID, fill.Qty)
	}
	if isTerminal(o.Status) {
		delete(g.pending, fill.OrderID)
	}
	return nil
}

// Prune forgets finished orders.
func (g *Gateway) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Forget()
}

// Disconnect marks the gateway as disconnected. Sends fail until Reconnect.
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}

// Reconnect marks the gateway as connected and re-dispatches the working orders
// when configured to. It returns the ids it resent.
func (g *Gateway) Reconnect() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.connected = true
	if !g.cfg.ResendOnReconnect {
		return nil
	}
	out := make([]string, 0, len(g.pending))
	for id, r := range g.pending {
		if err := g.dispatch.Handle(r); err != nil {
			logs.Warnf("[%s] resend order %s, err: %+v", g.cfg.Session, id, err)
			continue
		}
		out = append(out, id)
	}
	return out
}

// RejectedUpdate builds the REJECTED update for a placement the dispatcher
// failed asynchronously.
func RejectedUpdate(req order.Request, at time.Time) (schema.OrderUpdate, bool) {
	if req.Action != order.ActionPlace {
		return schema.OrderUpdate{}, false
	}
	u := schema.OrderUpdate{
		OrderID:   req.OrderID,
		Symbol:    req.Order.Symbol,
		Status:    schema.OrderStatusRejected,
		Strategy:  req.Order.Strategy,
		Timestamp: at,
	}
	return u, true
}

func validateRequest(req schema.OrderRequest) error {
	switch {
	case req.Symbol == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "empty symbol")
	case req.Side != schema.OrderSideBuy && req.Side != schema.OrderSideSell:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "side: %s", req.Side)
	case req.Qty <= 0:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "qty: %d", req.Qty)
	case req.Strategy == schema.StrategyUnknown:
		return errors.Wrap(exception.ErrOrderInvalidRequest, "untagged strategy")
	case req.Type == schema.OrderTypeLimit && req.Price <= 0:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "limit price: %f", req.Price)
	case req.Type != schema.OrderTypeLimit && req.Type != schema.OrderTypeMarket:
		return errors.Wrapf(exception.ErrOrderUnsupportedType, "type: %s", req.Type)
	}
	return nil
}

func orderRequest(o *Order) schema.OrderRequest {
	return schema.OrderRequest{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Type:     schema.OrderTypeLimit,
		Price:    o.Price,
		Qty:      o.Qty,
		Strategy: o.Strategy,
	}
}
