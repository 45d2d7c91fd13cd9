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
	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string
		LogLevel         string

		PasswordResetTimeoutDelta time.Duration
		DispatchInterval          time.Duration // scheduled announcements

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Session   SessionConfig
		Documents DocumentsConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		LoginPath                 string
		FallbackPath              string
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
		InMemory      bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	SessionConfig struct {
		Backend   string // memory | redis
		TTL       time.Duration
		KeyPrefix string
	}

	DocumentsConfig struct {
		Backend  string // local | s3
		LocalDir string
		Bucket   string
		Region   string
		Prefix   string
	}
)

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration of the current environment.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v)
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("database.inMemory", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

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
	v.AutomaticEnv()

	return &Config{
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("appName"),
			Address: v.GetString("defaultFromEmail"),
		},
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		LogLevel:                  v.GetString("logLevel"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		DispatchInterval:          v.GetDuration("dispatchInterval"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetString("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			LoginPath:                 v.GetString("server.loginPath"),
			FallbackPath:              v.GetString("server.fallbackPath"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			InMemory:      v.GetBool("database.inMemory"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Session: SessionConfig{
			Backend:   v.GetString("session.backend"),
			TTL:       v.GetDuration("session.ttl"),
			KeyPrefix: v.GetString("session.keyPrefix"),
		},
		Documents: DocumentsConfig{
			Backend:  v.GetString("documents.backend"),
			LocalDir: v.GetString("documents.localDir"),
			Bucket:   v.GetString("documents.bucket"),
			Region:   v.GetString("documents.region"),
			Prefix:   v.GetString("documents.prefix"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Pueri Angeli")
	v.SetDefault("secretKey", "k2m!x4#qv8@r1z&9tw6^p0ns3$yb7(ej5)hd-c%gu")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("logLevel", "debug")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("dispatchInterval", time.Minute)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	v.SetDefault("server.loginPath", "/login")
	v.SetDefault("server.fallbackPath", "/")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "pueriangeli")
	v.SetDefault("database.user", "pueriangeli")
	v.SetDefault("database.password", "pueriangeli")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.inMemory", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", 7*24*time.Hour)
	v.SetDefault("session.keyPrefix", "pueri-angeli-auth:")

	v.SetDefault("documents.backend", "local")
	v.SetDefault("documents.localDir", filepath.Join(os.TempDir(), "pueriangeli", "documents"))
	v.SetDefault("documents.bucket", "")
	v.SetDefault("documents.region", "us-east-1")
	v.SetDefault("documents.prefix", "")
}

// NewTestConfig returns a Config suitable for tests: in-memory storage, short-lived tokens, no Rollbar.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "Pueri Angeli",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:5173",
		DefaultFromEmail:          mail.Address{Name: "Pueri Angeli", Address: "noreply@localhost"},
		LogLevel:                  "error",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		DispatchInterval:          time.Minute,
		Server: ServerConfig{
			Port:                      "8000",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			LoginPath:                 "/login",
			FallbackPath:              "/",
		},
		Database: DatabaseConfig{InMemory: true},
		Session: SessionConfig{
			Backend:   "memory",
			TTL:       time.Hour,
			KeyPrefix: "pueri-angeli-auth:",
		},
		Documents: DocumentsConfig{Backend: "local", LocalDir: os.TempDir(), Prefix: ""},
	}
}
