package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/subscription"
	"github.com/trezcool/jamii/core/user"
	emailsvc "github.com/trezcool/jamii/services/email"
	logsvc "github.com/trezcool/jamii/services/logger"
	"github.com/trezcool/jamii/storage/database"
	sqlxrepos "github.com/trezcool/jamii/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "SCHEDULER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	subSvc := subscription.NewService(sqlxrepos.NewSubscriptionRepository(db), usrSvc, mailSvc, logger, conf)

	// =========================================================================
	// Start Scheduler

	c, err := newScheduler(
		conf.Subscription.SweepSchedule,
		newSweeper(subSvc, mailSvc, logger),
		logsvc.NewCronLogger(logger, conf.Debug),
	)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	logger.Info(fmt.Sprintf("Scheduler starting : version %q, sweep %q", conf.Build, conf.Subscription.SweepSchedule))
	c.Start()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown

	// wait for a running sweep to complete
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	<-c.Stop().Done()
	mailSvc.Wait()
	logger.Info("Scheduler stopped")
}
