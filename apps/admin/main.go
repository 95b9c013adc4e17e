package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	logsvc "github.com/admitdesk/admitdesk/services/logger"
	"github.com/admitdesk/admitdesk/storage/database"
	boiledrepos "github.com/admitdesk/admitdesk/storage/database/sqlboiler"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: boiledrepos.NewUserRepository(db),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
