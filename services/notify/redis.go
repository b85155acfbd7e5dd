package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/payment"
)

const eventPaymentRecorded = "payment.recorded"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PaymentEvent is the message published for every recorded payment.
type PaymentEvent struct {
	Event        string          `json:"event"`
	PaymentID    string          `json:"paymentId"`
	StudentID    string          `json:"studentId"`
	StudentCode  string          `json:"studentCode"`
	StudentName  string          `json:"studentName"`
	ParentPhone  string          `json:"parentPhone,omitempty"`
	GroupID      string          `json:"groupId"`
	GroupName    string          `json:"groupName"`
	Amount       decimal.Decimal `json:"amount"`
	PaymentType  payment.Type    `json:"paymentType"`
	Date         string          `json:"date"`
	BillingMonth billing.Month   `json:"billingMonth,omitempty"`
	BillingYear  int             `json:"billingYear,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
	RecordedBy   string          `json:"recordedBy"`
	RecordedAt   time.Time       `json:"recordedAt"`
}

// RedisNotifier publishes a PaymentEvent on a Redis channel.
type RedisNotifier struct {
	pub     publisher
	channel string
}

var _ payment.Notifier = (*RedisNotifier)(nil)

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         conf.Redis.Address,
		Password:     conf.Redis.Password,
		DB:           conf.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
}

func NewRedisNotifier(client *redis.Client, conf *core.Config) *RedisNotifier {
	return &RedisNotifier{pub: client, channel: conf.Redis.Channel}
}

func (n *RedisNotifier) PaymentRecorded(ctx context.Context, rcpt payment.Receipt) error {
	msg, err := json.Marshal(PaymentEvent{
		Event:        eventPaymentRecorded,
		PaymentID:    rcpt.Entry.ID,
		StudentID:    rcpt.Student.ID,
		StudentCode:  rcpt.Student.Code,
		StudentName:  rcpt.Student.FullName(),
		ParentPhone:  rcpt.Student.ParentPhone,
		GroupID:      rcpt.Group.ID,
		GroupName:    rcpt.Group.DisplayName(),
		Amount:       rcpt.Entry.Amount,
		PaymentType:  rcpt.Entry.Type,
		Date:         rcpt.Entry.Date.Format(core.DateLayout),
		BillingMonth: rcpt.Entry.BillingMonth,
		BillingYear:  rcpt.Entry.BillingYear,
		Balance:      rcpt.Balance,
		RecordedBy:   rcpt.Entry.CreatedBy,
		RecordedAt:   rcpt.Entry.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling payment event")
	}
	if err = n.pub.Publish(ctx, n.channel, msg).Err(); err != nil {
		return errors.Wrap(err, "publishing payment event")
	}
	return nil
}
