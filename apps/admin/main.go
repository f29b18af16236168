package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/credential"
	"github.com/imusici/accademia/core/user"
	logsvc "github.com/imusici/accademia/services/logger"
	"github.com/imusici/accademia/storage/database"
	sqlxrepos "github.com/imusici/accademia/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	if conf.Database.InMemory {
		logger.Fatal("the admin CLI needs a postgres database: unset database.in_memory")
	}

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db: db.DB,
		users: user.NewService(
			sqlxrepos.NewUserRepository(db),
			credential.NewBcryptStore(conf.Auth.PasswordHashCost),
			validate,
			translator,
			conf,
			logsvc.NewRollbarLogger(logger, conf),
		),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
