package exception

import "github.com/yanun0323/errors"

// Journal errors
var (
	ErrJournalQueueFull = errors.New("journal: queue full")
	ErrJournalClosed    = errors.New("journal: closed")
)

// Report errors
var (
	ErrReportEncode  = errors.New("report: encode status")
	ErrReportPublish = errors.New("report: publish status")
)
