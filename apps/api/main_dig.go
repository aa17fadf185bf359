package main

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	dig_container "github.com/trezcool/masomo-admin/apps/api/di/dig"
	echoapi "github.com/trezcool/masomo-admin/apps/api/echo"
	"github.com/trezcool/masomo-admin/core"
	appfs "github.com/trezcool/masomo-admin/fs"
)

func startWithDig() {
	c := dig_container.New()

	// validators and templates must be ready before the server handles requests
	must(c.Invoke(func(conf *core.Config, logger core.Logger, validate *validator.Validate, translator ut.Translator) {
		core.InitValidators(validate, translator)
		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug, logger)
	}))

	must(c.Invoke(func(conf *core.Config, logger core.Logger, db *sqlx.DB, server *echoapi.Server) {
		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database", err)
			}
		}()
		defer logger.Info("Application stopped")

		serve(conf, logger, server)
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
