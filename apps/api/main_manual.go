package main

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/masomo-admin/apps/api/di/dig"
	echoapi "github.com/trezcool/masomo-admin/apps/api/echo"
	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/message"
	appfs "github.com/trezcool/masomo-admin/fs"
	logsvc "github.com/trezcool/masomo-admin/services/logger"
	sqlxrepos "github.com/trezcool/masomo-admin/storage/database/sqlx"
)

func startManual() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	z, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("building zap logger: %v", err)
	}
	zl := logsvc.NewZapLogger(z)
	defer func() { _ = zl.Sync() }()

	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	db, err := dig_container.SetUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("Failed to close database", err)
		}
	}()

	// set up services
	directory := sqlxrepos.NewCourseDirectory(db)
	mailSvc := dig_container.NewEmailService(conf, logger)
	publisher := dig_container.NewEventPublisher(conf)
	msgSvc := message.NewService(sqlxrepos.NewMessageRepository(db), mailSvc, publisher, logger)
	caches := message.NewCaches()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug, logger)

	composer := compose.NewManager(
		directory,
		directory,
		msgSvc,
		caches,
		validate,
		logger,
		compose.NewOptions(conf, dig_container.NewSearchCache(conf, logger)),
	)

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Composer:   composer,
			MessageSvc: msgSvc,
			Caches:     caches,
			Validate:   validate,
			Translator: translator,
		},
	)
	serve(conf, logger, server)
}
