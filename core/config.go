package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		Server           ServerConfig
		Database         DatabaseConfig
		Compose          ComposeConfig
		Redis            RedisConfig
		Kafka            KafkaConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// ComposeConfig tunes composition sessions.
	ComposeConfig struct {
		ProgressTick    time.Duration
		ProgressMin     int
		ProgressMax     int
		DispatchTimeout time.Duration // 0: no timeout
		SearchDebounce  time.Duration
		SearchCacheTTL  time.Duration
		MaxSessions     int // open composition sessions per process
	}

	RedisConfig struct {
		Addr string // empty: search results are not cached
	}

	KafkaConfig struct {
		Brokers []string // empty: events are not published
		Topic   string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` (if present) and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", 5432)
	v.SetDefault("dbName", "masomo")
	v.SetDefault("dbUser", "masomo")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("progressTick", time.Second)
	v.SetDefault("progressMin", 20)
	v.SetDefault("progressMax", 100)
	v.SetDefault("dispatchTimeout", time.Duration(0))
	v.SetDefault("searchDebounce", 250*time.Millisecond)
	v.SetDefault("searchCacheTTL", time.Minute)
	v.SetDefault("maxSessions", 500)

	v.SetDefault("redisAddr", "")
	v.SetDefault("kafkaBrokers", "")
	v.SetDefault("kafkaTopic", "professor-messages")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	appName := v.GetString("appName")
	conf := &Config{
		AppName:          appName,
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: mail.Address{Name: appName, Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			DebugHost:       v.GetString("serverDebugHost"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetInt("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Compose: ComposeConfig{
			ProgressTick:    v.GetDuration("progressTick"),
			ProgressMin:     v.GetInt("progressMin"),
			ProgressMax:     v.GetInt("progressMax"),
			DispatchTimeout: v.GetDuration("dispatchTimeout"),
			SearchDebounce:  v.GetDuration("searchDebounce"),
			SearchCacheTTL:  v.GetDuration("searchCacheTTL"),
			MaxSessions:     v.GetInt("maxSessions"),
		},
		Redis: RedisConfig{Addr: v.GetString("redisAddr")},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafkaBrokers")),
			Topic:   v.GetString("kafkaTopic"),
		},
	}
	if err := conf.Compose.check(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

func (c ComposeConfig) check() error {
	if c.ProgressMax <= c.ProgressMin || c.ProgressMin < 0 {
		return fmt.Errorf("invalid progress bounds: min %d, max %d", c.ProgressMin, c.ProgressMax)
	}
	if c.ProgressTick <= 0 {
		return fmt.Errorf("progress tick must be positive, got %v", c.ProgressTick)
	}
	return nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
