package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/student"
	emailsvc "github.com/trezcool/tuition/services/email"
	logsvc "github.com/trezcool/tuition/services/logger"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

type failingNotifier struct{ msg string }

func (n failingNotifier) PaymentRecorded(context.Context, payment.Receipt) error {
	return errors.New(n.msg)
}

func newReceipt(parentEmail string) payment.Receipt {
	grp := student.Group{ID: "g1", Code: "ENG-1", Name: "English", MonthlyPrice: decimal.NewFromInt(500000)}
	return payment.Receipt{
		Entry: payment.Entry{
			ID:           "p1",
			StudentID:    "s1",
			GroupID:      grp.ID,
			Amount:       decimal.NewFromInt(500000),
			Type:         payment.TypeCash,
			Date:         time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
			BillingMonth: billing.Month(3),
			BillingYear:  2024,
			CreatedBy:    "admin-1",
			CreatedAt:    time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC),
		},
		Student: student.Student{
			ID:          "s1",
			Code:        "ST-001",
			FirstName:   "Aziza",
			LastName:    "Karimova",
			ParentPhone: "+998901234567",
			ParentEmail: parentEmail,
			Groups:      []student.Group{grp},
		},
		Group:   grp,
		Balance: decimal.RequireFromString("650000.5"),
	}
}

func TestRedisNotifier_PaymentRecorded(t *testing.T) {
	pub := new(fakePublisher)
	n := &RedisNotifier{pub: pub, channel: "payment.recorded"}

	require.NoError(t, n.PaymentRecorded(context.Background(), newReceipt("")))
	assert.Equal(t, "payment.recorded", pub.channel)

	var evt map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.message, &evt))
	assert.Equal(t, eventPaymentRecorded, evt["event"])
	assert.Equal(t, "p1", evt["paymentId"])
	assert.Equal(t, "ST-001", evt["studentCode"])
	assert.Equal(t, "Aziza Karimova", evt["studentName"])
	assert.Equal(t, "English", evt["groupName"])
	assert.Equal(t, "05-03-2024", evt["date"])
	assert.Equal(t, "NAQD", evt["paymentType"])
	assert.Equal(t, "admin-1", evt["recordedBy"])
	assert.EqualValues(t, 2024, evt["billingYear"])
	assert.NotNil(t, evt["billingMonth"])
	assert.NotNil(t, evt["balance"])
}

func TestRedisNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	n := &RedisNotifier{pub: pub, channel: "payment.recorded"}

	err := n.PaymentRecorded(context.Background(), newReceipt(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEmailNotifier_PaymentRecorded(t *testing.T) {
	conf := &core.Config{AppName: "Tuition", TestMode: true}
	core.ParseEmailTemplates(conf, logsvc.NewNopLogger())
	n := NewEmailNotifier(emailsvc.NewConsoleServiceMock(conf))

	t.Run("no parent email", func(t *testing.T) {
		before := len(emailsvc.Outbox())
		require.NoError(t, n.PaymentRecorded(context.Background(), newReceipt("")))
		assert.Len(t, emailsvc.Outbox(), before)
	})

	t.Run("invalid parent email", func(t *testing.T) {
		assert.Error(t, n.PaymentRecorded(context.Background(), newReceipt("not an email")))
	})

	t.Run("receipt sent", func(t *testing.T) {
		before := len(emailsvc.Outbox())
		require.NoError(t, n.PaymentRecorded(context.Background(), newReceipt("parent@example.com")))

		outbox := emailsvc.Outbox()
		require.Len(t, outbox, before+1)
		msg := outbox[len(outbox)-1]
		assert.Equal(t, "parent@example.com", msg.To[0].Address)
		assert.Equal(t, "Payment received", msg.Subject)
		assert.True(t, strings.Contains(msg.TextContent, "500000.00"))
		assert.True(t, strings.Contains(msg.TextContent, "Aziza Karimova"))
		assert.True(t, strings.Contains(msg.TextContent, "650000.50"))
	})
}

func TestMulti_PaymentRecorded(t *testing.T) {
	pub := new(fakePublisher)
	m := Multi{
		failingNotifier{msg: "smtp down"},
		&RedisNotifier{pub: pub, channel: "ch"},
		failingNotifier{msg: "quota exceeded"},
	}

	err := m.PaymentRecorded(context.Background(), newReceipt(""))
	require.Error(t, err)
	assert.Equal(t, "smtp down; quota exceeded", err.Error())
	assert.Equal(t, "ch", pub.channel, "every notifier runs")

	assert.NoError(t, Multi{}.PaymentRecorded(context.Background(), newReceipt("")))
}
