package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	AIConfig struct {
		BaseURL    string
		APIKey     string
		Model      string
		Timeout    time.Duration
		RubricPath string // optional override of the embedded rubric
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		CacheTTL time.Duration
	}

	NATSConfig struct {
		URL           string
		SubjectPrefix string
	}

	S3Config struct {
		Bucket string
		Prefix string
	}

	RateLimitConfig struct {
		AIRequests int
		AIWindow   time.Duration
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		defaultFromEmail string

		Server    ServerConfig
		Database  DatabaseConfig
		AI        AIConfig
		Redis     RedisConfig
		NATS      NATSConfig
		S3        S3Config
		RateLimit RateLimitConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DefaultFromEmail parses the configured sender; falls back to a bare address when unparsable.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

// NewConfig loads the configuration from the environment, prefixed by ENV (DEV, TEST, QA, PROD).
// A `config/.env.<env>` file is loaded first when it exists.
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("appName", "AdmitDesk")
	conf.SetDefault("build", "dev")
	conf.SetDefault("debug", env == "DEV")
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("secretKey", "r8!c2v#n0q$w@l+7=ka&s5ux4(h)j9*e%bz1(t^y6pm3gfd")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "AdmitDesk <noreply@localhost>")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", ":8000")
	conf.SetDefault("serverDebugHost", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbName", "admitdesk")
	conf.SetDefault("dbUser", "admitdesk")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbAdminUser", "")
	conf.SetDefault("dbAdminPassword", "")
	conf.SetDefault("dbDisableTLS", env == "DEV" || env == "TEST")

	conf.SetDefault("aiBaseURL", "https://api.openai.com/v1")
	conf.SetDefault("aiAPIKey", "")
	conf.SetDefault("aiModel", "gpt-4o-mini")
	conf.SetDefault("aiTimeout", 60*time.Second)
	conf.SetDefault("aiRubricPath", "")

	conf.SetDefault("redisAddr", "")
	conf.SetDefault("redisPassword", "")
	conf.SetDefault("redisDB", 0)
	conf.SetDefault("redisCacheTTL", 10*time.Minute)

	conf.SetDefault("natsURL", "")
	conf.SetDefault("natsSubjectPrefix", "admitdesk")

	conf.SetDefault("s3Bucket", "")
	conf.SetDefault("s3Prefix", "submissions")

	conf.SetDefault("rateLimitAIRequests", 20)
	conf.SetDefault("rateLimitAIWindow", time.Hour)

	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimSuffix(conf.GetString("frontendBaseURL"), "/"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		defaultFromEmail: conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		AI: AIConfig{
			BaseURL:    conf.GetString("aiBaseURL"),
			APIKey:     conf.GetString("aiAPIKey"),
			Model:      conf.GetString("aiModel"),
			Timeout:    conf.GetDuration("aiTimeout"),
			RubricPath: conf.GetString("aiRubricPath"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redisAddr"),
			Password: conf.GetString("redisPassword"),
			DB:       conf.GetInt("redisDB"),
			CacheTTL: conf.GetDuration("redisCacheTTL"),
		},
		NATS: NATSConfig{
			URL:           conf.GetString("natsURL"),
			SubjectPrefix: conf.GetString("natsSubjectPrefix"),
		},
		S3: S3Config{
			Bucket: conf.GetString("s3Bucket"),
			Prefix: conf.GetString("s3Prefix"),
		},
		RateLimit: RateLimitConfig{
			AIRequests: conf.GetInt("rateLimitAIRequests"),
			AIWindow:   conf.GetDuration("rateLimitAIWindow"),
		},
	}
}

// NewTestConfig returns the configuration used by tests, regardless of ENV.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "test-secret"
	return conf
}
