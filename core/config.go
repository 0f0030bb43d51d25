package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	// Config holds all app settings. It is loaded once at startup and passed
	// around explicitly; nothing in the core reads the environment directly.
	Config struct {
		AppName          string
		Env              string // DEV (default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        []byte
		DefaultFromEmail mail.Address
		FrontendBaseURL  string

		// AdminSeesAnonymousIdentity controls whether admin projections of an
		// anonymous submission carry the real student name/email. Off by
		// default: "Submit Anonymously" means anonymous to admins too.
		AdminSeesAnonymousIdentity bool

		DatabaseURL    string // empty -> in-memory store
		SendgridApiKey string
		RollbarToken   string

		Admin  AdminConfig
		Server ServerConfig
	}

	// AdminConfig describes the seed admin account created at startup.
	AdminConfig struct {
		Name     string
		Email    string
		Password string
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Sauti")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "w#05+x9b$e&_mch5@a7&!p(r-yn5l*%sg^d2f8qw2+u4=no7vt")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("adminSeesAnonymousIdentity", false)
	v.SetDefault("databaseURL", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("adminName", "Admin")
	v.SetDefault("adminEmail", "admin@localhost")
	v.SetDefault("adminPassword", "")
	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	if cwd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(cwd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		}
	}
	v.AutomaticEnv()

	return &Config{
		AppName:                    v.GetString("appName"),
		Env:                        env,
		Build:                      v.GetString("build"),
		Debug:                      v.GetBool("debug"),
		TestMode:                   env == "TEST",
		SecretKey:                  []byte(v.GetString("secretKey")),
		DefaultFromEmail:           mail.Address{Address: v.GetString("defaultFromEmail")},
		FrontendBaseURL:            v.GetString("frontendBaseURL"),
		AdminSeesAnonymousIdentity: v.GetBool("adminSeesAnonymousIdentity"),
		DatabaseURL:                v.GetString("databaseURL"),
		SendgridApiKey:             v.GetString("sendgridApiKey"),
		RollbarToken:               v.GetString("rollbarToken"),
		Admin: AdminConfig{
			Name:     v.GetString("adminName"),
			Email:    v.GetString("adminEmail"),
			Password: v.GetString("adminPassword"),
		},
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
		},
	}
}
