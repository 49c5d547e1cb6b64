package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/subscription"
	"github.com/trezcool/jamii/core/user"
	emailsvc "github.com/trezcool/jamii/services/email"
	logsvc "github.com/trezcool/jamii/services/logger"
	"github.com/trezcool/jamii/storage/database"
	sqlxrepos "github.com/trezcool/jamii/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo)

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: usrRepo,
		subSvc:  subscription.NewService(sqlxrepos.NewSubscriptionRepository(db), usrSvc, mailSvc, logger, conf),
		mailSvc: mailSvc,
		out:     os.Stdout,
	}
	err = cli.run(os.Args)
	mailSvc.Wait()

	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
