package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-admin/apps/api/echo"
	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	emailsvc "github.com/trezcool/masomo-admin/services/email"
	"github.com/trezcool/masomo-admin/services/events"
	logsvc "github.com/trezcool/masomo-admin/services/logger"
	"github.com/trezcool/masomo-admin/storage/cache"
	"github.com/trezcool/masomo-admin/storage/database"
	sqlxrepos "github.com/trezcool/masomo-admin/storage/database/sqlx"
)

func newZapLogger(conf *core.Config) (*logsvc.ZapLogger, error) {
	z, err := logsvc.NewZap(conf)
	if err != nil {
		return nil, errors.Wrap(err, "building zap logger")
	}
	return logsvc.NewZapLogger(z), nil
}

func newLogger(zl *logsvc.ZapLogger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

// SetUpDB creates, opens and migrates the application database.
func SetUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewEmailService logs emails in debug mode, and sends them with SendGrid otherwise.
func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewEventPublisher returns nil when no Kafka broker is configured.
func NewEventPublisher(conf *core.Config) message.EventPublisher {
	if len(conf.Kafka.Brokers) == 0 {
		return nil
	}
	return events.NewKafkaPublisher(conf.Kafka.Brokers, conf.Kafka.Topic)
}

// NewSearchCache returns nil when Redis is not configured or unreachable.
func NewSearchCache(conf *core.Config, logger core.Logger) course.SearchCache {
	if conf.Redis.Addr == "" {
		return nil
	}
	rdb, err := cache.Open(context.Background(), conf.Redis.Addr)
	if err != nil {
		logger.Warn(fmt.Sprintf("search results will not be cached: %v", err), err)
		return nil
	}
	return cache.NewRedisCache(rdb, logger)
}

func newDispatcher(svc *message.Service) compose.Dispatcher { return svc }

// New returns a new dependency injection dig.Container
func New(opts ...dig.Option) *dig.Container {
	c := dig.New(opts...)

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(SetUpDB))
	must(c.Provide(sqlxrepos.NewCourseDirectory, dig.As(new(course.Directory), new(course.Searcher))))
	must(c.Provide(sqlxrepos.NewMessageRepository, dig.As(new(message.Repository))))
	must(c.Provide(NewEmailService))
	must(c.Provide(NewEventPublisher))
	must(c.Provide(NewSearchCache))
	must(c.Provide(message.NewService))
	must(c.Provide(message.NewCaches))
	must(c.Provide(newDispatcher))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(compose.NewOptions))
	must(c.Provide(compose.NewManager))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
