package journal

import (
	"time"

	"metahft/internal/allocator"
	"metahft/internal/schema"

	"github.com/shopspring/decimal"
)

// FillRecord is one execution routed by the runtime.
type FillRecord struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string          `gorm:"column:order_id;size:64;index"`
	Symbol    string          `gorm:"column:symbol;size:16"`
	Strategy  string          `gorm:"column:strategy;size:32;index"`
	Side      string          `gorm:"column:side;size:8"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(20,4)"`
	Qty       int64           `gorm:"column:qty"`
	FilledAt  time.Time       `gorm:"column:filled_at;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (FillRecord) TableName() string {
	return "journal_fills"
}

// RejectionRecord is a signal the allocator refused.
type RejectionRecord struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Strategy  string          `gorm:"column:strategy;size:32;index"`
	Side      string          `gorm:"column:side;size:8"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(20,4)"`
	Qty       int64           `gorm:"column:qty"`
	Signal    string          `gorm:"column:signal;size:128"`
	Code      string          `gorm:"column:code;size:32;index"`
	Reason    string          `gorm:"column:reason;size:256"`
	DecidedAt time.Time       `gorm:"column:decided_at;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (RejectionRecord) TableName() string {
	return "journal_rejections"
}

// CloseRecord is the realized PnL of one round trip.
type CloseRecord struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Strategy  string          `gorm:"column:strategy;size:32;index"`
	PnL       decimal.Decimal `gorm:"column:pnl;type:numeric(20,4)"`
	ClosedAt  time.Time       `gorm:"column:closed_at;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (CloseRecord) TableName() string {
	return "journal_closes"
}

func newFillRecord(f schema.Fill) FillRecord {
	return FillRecord{
		OrderID:  f.OrderID,
		Symbol:   f.Symbol,
		Strategy: f.Strategy.String(),
		Side:     f.Side.String(),
		Price:    decimal.NewFromFloat(f.Price),
		Qty:      f.Qty,
		FilledAt: f.Timestamp,
	}
}

func newRejectionRecord(sig allocator.Signal, d allocator.Decision, at time.Time) RejectionRecord {
	return RejectionRecord{
		Strategy:  sig.Strategy.String(),
		Side:      sig.Side.String(),
		Price:     decimal.NewFromFloat(sig.Price),
		Qty:       sig.Qty,
		Signal:    sig.Reason,
		Code:      d.Code.String(),
		Reason:    d.Reason,
		DecidedAt: at,
	}
}

func newCloseRecord(st schema.StrategyType, pnl float64, at time.Time) CloseRecord {
	return CloseRecord{
		Strategy: st.String(),
		PnL:      decimal.NewFromFloat(pnl).Round(4),
		ClosedAt: at,
	}
}
