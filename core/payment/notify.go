package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core/student"
)

// Receipt describes a payment that was just recorded.
type Receipt struct {
	Entry   Entry
	Student student.Student
	Group   student.Group
	Balance decimal.Decimal // the student's balance after the payment
}

// Notifier is told about payments once they are committed.
type Notifier interface {
	PaymentRecorded(ctx context.Context, rcpt Receipt) error
}
