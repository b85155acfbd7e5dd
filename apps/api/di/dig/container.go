// Package dig_container wires the API dependencies with go.uber.org/dig.
package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/tuition/apps/api/echo"
	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/debtor"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/statistics"
	"github.com/trezcool/tuition/core/student"
	"github.com/trezcool/tuition/core/user"
	emailsvc "github.com/trezcool/tuition/services/email"
	logsvc "github.com/trezcool/tuition/services/logger"
	"github.com/trezcool/tuition/services/notify"
	"github.com/trezcool/tuition/storage/database"
	boiledrepos "github.com/trezcool/tuition/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/tuition/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       *user.Service
	PaymentSvc    *payment.Service
	DebtorSvc     *debtor.Service
	StatisticsSvc *statistics.Service
}

// newLogger logs through zap in development and through Rollbar otherwise.
func newLogger(conf *core.Config) core.Logger {
	if conf.Debug {
		logger, err := logsvc.NewZapLogger("api", conf)
		if err != nil {
			log.Fatalf("creating zap logger: %v", err)
		}
		return logger
	}
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(true)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	if conf.Debug {
		logger, err := logsvc.NewZapLogger("db", conf)
		if err != nil {
			log.Fatalf("creating zap logger: %v", err)
		}
		return logger
	}
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(true)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newTxRunner(db core.DB) core.TxRunner {
	return database.NewTxRunner(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newNotifier(conf *core.Config, mailSvc core.EmailService, client *redis.Client) payment.Notifier {
	return notify.Multi{
		notify.NewEmailNotifier(mailSvc),
		notify.NewRedisNotifier(client, conf),
	}
}

func newValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	payment.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newDebtorOptions(conf *core.Config) debtor.Options {
	return debtor.Options{
		StartDate: conf.Billing.StartDate,
		Threshold: conf.Billing.MaterialityThreshold,
	}
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Options{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		Metrics:       prometheus.DefaultRegisterer,
		UserSvc:       p.UserSvc,
		PaymentSvc:    p.PaymentSvc,
		DebtorSvc:     p.DebtorSvc,
		StatisticsSvc: p.StatisticsSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newTxRunner))
	must(c.Provide(newValidator))
	must(c.Provide(newEmailService))
	must(c.Provide(notify.NewRedisClient))
	must(c.Provide(newNotifier))

	must(c.Provide(boiledrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(
		boiledrepos.NewPaymentRepository,
		dig.As(new(payment.Repository), new(debtor.Ledger), new(statistics.Ledger)),
	))
	must(c.Provide(sqlxrepos.NewStudentDirectory, dig.As(new(student.Directory))))

	must(c.Provide(user.NewService))
	must(c.Provide(payment.NewService))
	must(c.Provide(newDebtorOptions))
	must(c.Provide(debtor.NewService))
	must(c.Provide(statistics.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
