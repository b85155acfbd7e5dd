package notify

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/tuition/core/payment"
)

// Multi fans a receipt out to every notifier. All of them run, failures are joined.
type Multi []payment.Notifier

var _ payment.Notifier = (Multi)(nil)

func (m Multi) PaymentRecorded(ctx context.Context, rcpt payment.Receipt) error {
	var msgs []string
	for _, n := range m {
		if err := n.PaymentRecorded(ctx, rcpt); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) > 0 {
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
