package logsvc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/tuition/core/user"
)

func TestZapLogger_fields(t *testing.T) {
	l := NewNopLogger()
	fields := l.fields([]interface{}{
		errors.New("boom"),
		map[string]interface{}{"paymentId": "p-1"},
		user.User{ID: "u-1", Username: "cashier"},
		42,
	})

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"error", "paymentId", "userId", "username", "arg3"}, keys)
	assert.Equal(t, zapcore.ErrorType, fields[0].Type)
}
