// Package notify tells the outside world about recorded payments.
package notify

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/payment"
)

const receiptTemplate = "payment_received"

type receiptData struct {
	StudentName string
	Amount      string
	PaymentType string
	Date        string
	Period      string
	Balance     string
}

// EmailNotifier emails a receipt to the student's parent. Students without a parent email are skipped.
type EmailNotifier struct {
	mailSvc core.EmailService
}

var _ payment.Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(mailSvc core.EmailService) *EmailNotifier {
	return &EmailNotifier{mailSvc: mailSvc}
}

func (n *EmailNotifier) PaymentRecorded(_ context.Context, rcpt payment.Receipt) error {
	if rcpt.Student.ParentEmail == "" {
		return nil
	}
	to, err := mail.ParseAddress(rcpt.Student.ParentEmail)
	if err != nil {
		return errors.Wrap(err, "parsing parent email")
	}

	data := receiptData{
		StudentName: rcpt.Student.FullName(),
		Amount:      rcpt.Entry.Amount.StringFixed(2),
		PaymentType: string(rcpt.Entry.Type),
		Date:        rcpt.Entry.Date.Format(core.DateLayout),
		Balance:     rcpt.Balance.StringFixed(2),
	}
	if period, ok := rcpt.Entry.Tagged().Period(); ok {
		data.Period = period.String()
	}

	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{*to},
		Subject:      "Payment received",
		TemplateName: receiptTemplate,
		TemplateData: data,
	})
	return nil
}
