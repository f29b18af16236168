package core

import (
	"fmt"
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
		Host            string
		Address         string
		DebugHost       string
		CookieSecure    bool
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
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
		InMemory      bool // no postgres; DEV & tests only
	}

	RedisConfig struct {
		Addr     string // empty: second-factor challenges are kept in memory
		Password string
		DB       int
	}

	AuthConfig struct {
		SessionTTL       time.Duration
		SecondFactorTTL  time.Duration
		DefaultAdminPIN  string
		PINMinLength     int
		PasswordHashCost int
		CookieName       string
	}

	IdentityConfig struct {
		Provider       string // session | google
		SessionDataURL string
		GoogleClientID string
		Timeout        time.Duration
	}

	PaymentConfig struct {
		DueDay             int
		ToleranceDays      int
		DefaultMonthlyFee  float64
		AnnualReminderDays int
	}

	CompensationConfig struct {
		DefaultRate float64
	}

	JobsConfig struct {
		Enabled         bool
		OverdueSweep    string
		MonthlyPayments string
		SessionCleanup  string
	}

	EmailConfig struct {
		SendgridAPIKey   string
		DefaultFromEmail mail.Address
	}

	Config struct {
		AppName         string
		Env             string
		Build           string
		Debug           bool
		TestMode        bool
		SecretKey       string
		RollbarToken    string
		FrontendBaseURL string

		Server       ServerConfig
		Database     DatabaseConfig
		Redis        RedisConfig
		Auth         AuthConfig
		Identity     IdentityConfig
		Payment      PaymentConfig
		Compensation CompensationConfig
		Jobs         JobsConfig
		Email        EmailConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("app_name", "Accademia")
	v.SetDefault("build", "dev")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", false)
	v.SetDefault("secret_key", "s8$kq!2m-dev-only-(x7v#r@1zt+p0w=ce9u)h4&nb")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("frontend_base_url", "http://localhost:3000")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug_host", ":4000")
	v.SetDefault("server.cookie_secure", true)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "accademia")
	v.SetDefault("database.user", "accademia")
	v.SetDefault("database.password", "")
	v.SetDefault("database.admin_user", "")
	v.SetDefault("database.admin_password", "")
	v.SetDefault("database.disable_tls", true)
	v.SetDefault("database.in_memory", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.session_ttl", 7*24*time.Hour)
	v.SetDefault("auth.second_factor_ttl", 5*time.Minute)
	v.SetDefault("auth.default_admin_pin", "1234")
	v.SetDefault("auth.pin_min_length", 4)
	v.SetDefault("auth.password_hash_cost", 12)
	v.SetDefault("auth.cookie_name", "session_token")

	v.SetDefault("identity.provider", "session")
	v.SetDefault("identity.session_data_url", "https://auth.example.com/session-data")
	v.SetDefault("identity.google_client_id", "")
	v.SetDefault("identity.timeout", 10*time.Second)

	v.SetDefault("payment.due_day", 7)
	v.SetDefault("payment.tolerance_days", 0)
	v.SetDefault("payment.default_monthly_fee", 150.0)
	v.SetDefault("payment.annual_reminder_days", 30)

	v.SetDefault("compensation.default_rate", 30.0)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.overdue_sweep", "5 0 * * *")
	v.SetDefault("jobs.monthly_payments", "0 1 1 * *")
	v.SetDefault("jobs.session_cleanup", "@hourly")

	v.SetDefault("email.sendgrid_api_key", "")
	v.SetDefault("email.default_from_email", "Accademia <noreply@localhost>")
}

// NewConfig reads the configuration from defaults, config/.env.<env> and the environment.
// Environment variables are prefixed with the ENV name, e.g. PROD_AUTH_SESSION_TTL.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
		v.SetDefault("database.in_memory", true)
		v.SetDefault("jobs.enabled", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return fromViper(v, env)
}

func fromViper(v *viper.Viper, env string) *Config {
	conf := &Config{
		AppName:         v.GetString("app_name"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("test_mode"),
		SecretKey:       v.GetString("secret_key"),
		RollbarToken:    v.GetString("rollbar_token"),
		FrontendBaseURL: v.GetString("frontend_base_url"),
	}
	conf.Server = ServerConfig{
		Host:            v.GetString("server.host"),
		Address:         v.GetString("server.address"),
		DebugHost:       v.GetString("server.debug_host"),
		CookieSecure:    v.GetBool("server.cookie_secure"),
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		WriteTimeout:    v.GetDuration("server.write_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}
	conf.Database = DatabaseConfig{
		Engine:        v.GetString("database.engine"),
		Host:          v.GetString("database.host"),
		Port:          v.GetString("database.port"),
		Name:          v.GetString("database.name"),
		User:          v.GetString("database.user"),
		Password:      v.GetString("database.password"),
		AdminUser:     v.GetString("database.admin_user"),
		AdminPassword: v.GetString("database.admin_password"),
		DisableTLS:    v.GetBool("database.disable_tls"),
		InMemory:      v.GetBool("database.in_memory"),
	}
	conf.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
	conf.Auth = AuthConfig{
		SessionTTL:       v.GetDuration("auth.session_ttl"),
		SecondFactorTTL:  v.GetDuration("auth.second_factor_ttl"),
		DefaultAdminPIN:  v.GetString("auth.default_admin_pin"),
		PINMinLength:     v.GetInt("auth.pin_min_length"),
		PasswordHashCost: v.GetInt("auth.password_hash_cost"),
		CookieName:       v.GetString("auth.cookie_name"),
	}
	conf.Identity = IdentityConfig{
		Provider:       v.GetString("identity.provider"),
		SessionDataURL: v.GetString("identity.session_data_url"),
		GoogleClientID: v.GetString("identity.google_client_id"),
		Timeout:        v.GetDuration("identity.timeout"),
	}
	conf.Payment = PaymentConfig{
		DueDay:             v.GetInt("payment.due_day"),
		ToleranceDays:      v.GetInt("payment.tolerance_days"),
		DefaultMonthlyFee:  v.GetFloat64("payment.default_monthly_fee"),
		AnnualReminderDays: v.GetInt("payment.annual_reminder_days"),
	}
	conf.Compensation = CompensationConfig{DefaultRate: v.GetFloat64("compensation.default_rate")}
	conf.Jobs = JobsConfig{
		Enabled:         v.GetBool("jobs.enabled"),
		OverdueSweep:    v.GetString("jobs.overdue_sweep"),
		MonthlyPayments: v.GetString("jobs.monthly_payments"),
		SessionCleanup:  v.GetString("jobs.session_cleanup"),
	}

	from, err := mail.ParseAddress(v.GetString("email.default_from_email"))
	if err != nil {
		log.Fatal(fmt.Errorf("config: invalid email.default_from_email: %v", err))
	}
	conf.Email = EmailConfig{
		SendgridAPIKey:   v.GetString("email.sendgrid_api_key"),
		DefaultFromEmail: *from,
	}
	return conf
}

// NewTestConfig returns the configuration used by tests: in-memory store, no jobs, fast hashing.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("test_mode", true)
	v.Set("database.in_memory", true)
	v.Set("jobs.enabled", false)
	v.Set("auth.password_hash_cost", 4) // bcrypt.MinCost
	return fromViper(v, "TEST")
}
