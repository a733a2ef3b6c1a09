package exception

import "github.com/yanun0323/errors"

var (
	ErrFeedDecode         = errors.New("feed: decode snapshot")
	ErrFeedInvalidConfig  = errors.New("feed: invalid config")
	ErrFeedSymbolMismatch = errors.New("feed: symbol mismatch")
)
