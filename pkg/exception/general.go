package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Config errors
var (
	ErrConfigRead    = errors.New("config: read file")
	ErrConfigDecode  = errors.New("config: decode file")
	ErrConfigInvalid = errors.New("config: invalid value")
)
