package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/debtor"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/user"
	logsvc "github.com/trezcool/tuition/services/logger"
	"github.com/trezcool/tuition/storage/database"
	boiledrepos "github.com/trezcool/tuition/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/tuition/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger, err := logsvc.NewZapLogger("admin", conf)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()
	if err = db.Ping(); err != nil {
		logger.Fatal("pinging database", err)
	}

	// set up services
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	payment.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	usrRepo := boiledrepos.NewUserRepository(db)
	debtorSvc := debtor.NewService(
		sqlxrepos.NewStudentDirectory(db),
		boiledrepos.NewPaymentRepository(db),
		debtor.Options{StartDate: conf.Billing.StartDate, Threshold: conf.Billing.MaterialityThreshold},
		validate,
	)

	// start CLI
	cli := commandLine{
		db:        db,
		out:       os.Stdout,
		usrSvc:    user.NewService(usrRepo, validate),
		debtorSvc: debtorSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}
