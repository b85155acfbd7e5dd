package logsvc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/user"
)

// ZapLogger is the structured logger used in development.
type ZapLogger struct {
	z *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger returns a development logger, or a JSON production logger when debug is off.
func NewZapLogger(name string, conf *core.Config) (*ZapLogger, error) {
	var (
		z   *zap.Logger
		err error
	)
	if conf.Debug {
		z, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		z, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return nil, err
	}
	return &ZapLogger{z: z.Named(name).With(zap.String("env", conf.Env))}, nil
}

// NewNopLogger discards everything.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{z: zap.NewNop()}
}

func (l ZapLogger) Sync() error {
	return l.z.Sync()
}

// fields maps the logger args to zap fields: errors, maps of extra data and the acting user are recognized.
func (l ZapLogger) fields(args []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			fields = append(fields, zap.Error(v))
		case map[string]interface{}:
			for k, val := range v {
				fields = append(fields, zap.Any(k, val))
			}
		case user.User:
			fields = append(fields, zap.String("userId", v.ID), zap.String("username", v.Username))
		default:
			fields = append(fields, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return fields
}

func (l ZapLogger) Debug(msg string, args ...interface{}) { l.z.Debug(msg, l.fields(args)...) }

func (l ZapLogger) Info(msg string, args ...interface{}) { l.z.Info(msg, l.fields(args)...) }

func (l ZapLogger) Warn(msg string, args ...interface{}) { l.z.Warn(msg, l.fields(args)...) }

func (l ZapLogger) Error(msg string, args ...interface{}) { l.z.Error(msg, l.fields(args)...) }

func (l ZapLogger) Fatal(msg string, args ...interface{}) { l.z.Fatal(msg, l.fields(args)...) }
