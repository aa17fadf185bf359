package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/masomo-admin/apps/api/di/dig"
	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/message"
	appfs "github.com/trezcool/masomo-admin/fs"
	logsvc "github.com/trezcool/masomo-admin/services/logger"
	"github.com/trezcool/masomo-admin/storage/database"
	sqlxrepos "github.com/trezcool/masomo-admin/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	z, err := logsvc.NewZap(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building zap logger: %v\n", err)
		os.Exit(1)
	}
	logger := logsvc.NewZapLogger(z.Named("admin"))
	defer func() { _ = logger.Sync() }()

	// set up DB
	ctx := context.Background()
	if err = database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug, logger)

	directory := sqlxrepos.NewCourseDirectory(db)
	mailSvc := dig_container.NewEmailService(conf, logger)
	msgSvc := message.NewService(
		sqlxrepos.NewMessageRepository(db),
		mailSvc,
		dig_container.NewEventPublisher(conf),
		logger,
	)
	composer := compose.NewManager(directory, directory, msgSvc, message.NewCaches(), validate, logger, compose.NewOptions(conf, nil))

	// start CLI
	cli := commandLine{
		migrate:  migrator(db.DB),
		composer: composer,
		mail:     mailSvc,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
