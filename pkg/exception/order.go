package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderInvalidRequest      = errors.New("order: invalid request")
	ErrOrderUnsupportedType     = errors.New("order: unsupported type")
	ErrOrderNilDelegator        = errors.New("order: nil delegator")
	ErrOrderInvalidWorkerConfig = errors.New("order: invalid worker config")
	ErrOrderQueueFull           = errors.New("order: queue full")
	ErrOrderRateLimited         = errors.New("order: rate limited")
	ErrOrderRejected            = errors.New("order: rejected by venue")
	ErrOrderRiskDenied          = errors.New("order: denied by pre-trade risk")
)

// Order state machine errors
var (
	ErrOrderDuplicate         = errors.New("order: already exists")
	ErrOrderUnknown           = errors.New("order: not found")
	ErrOrderInvalidTransition = errors.New("order: invalid state transition")
	ErrOrderInvalidFill       = errors.New("order: invalid fill quantity")
	ErrGatewayDisconnected    = errors.New("order: gateway disconnected")
)
