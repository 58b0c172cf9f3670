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
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridApiKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Moodle   MoodleConfig
		Azure    AzureConfig
		Stripe   StripeConfig
		Redis    RedisConfig

		v *viper.Viper
	}

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
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MoodleConfig struct {
		URL           string
		Token         string
		Timeout       time.Duration
		BulkTimeout   time.Duration
		StudentRoleID int
	}

	AzureConfig struct {
		Enabled      bool
		Sandbox      bool
		TenantID     string
		ClientID     string
		ClientSecret string
		SKUID        string
		Domain       string
		GraphURL     string
		LoginURL     string
		Timeout      time.Duration
	}

	StripeConfig struct {
		SecretKey      string
		PublishableKey string
		WebhookSecret  string
		Currency       string
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// NewConfig loads the configuration from the environment (prefixed by the ENV name)
// and from config/.env.<env> when that file exists.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:         v.GetString("appName"),
		Env:             env,
		Build:           v.GetString("build"),
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		SecretKey:       v.GetString("secretKey"),
		WorkDir:         workDir,
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("defaultFromName"),
			Address: v.GetString("defaultFromEmail"),
		},
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Moodle: MoodleConfig{
			URL:           v.GetString("moodle.url"),
			Token:         v.GetString("moodle.token"),
			Timeout:       v.GetDuration("moodle.timeout"),
			BulkTimeout:   v.GetDuration("moodle.bulkTimeout"),
			StudentRoleID: v.GetInt("moodle.studentRoleID"),
		},
		Azure: AzureConfig{
			Enabled:      v.GetBool("azure.enabled"),
			Sandbox:      v.GetBool("azure.sandbox"),
			TenantID:     v.GetString("azure.tenantID"),
			ClientID:     v.GetString("azure.clientID"),
			ClientSecret: v.GetString("azure.clientSecret"),
			SKUID:        v.GetString("azure.skuID"),
			Domain:       v.GetString("azure.domain"),
			GraphURL:     v.GetString("azure.graphURL"),
			LoginURL:     v.GetString("azure.loginURL"),
			Timeout:      v.GetDuration("azure.timeout"),
		},
		Stripe: StripeConfig{
			SecretKey:      v.GetString("stripe.secretKey"),
			PublishableKey: v.GetString("stripe.publishableKey"),
			WebhookSecret:  v.GetString("stripe.webhookSecret"),
			Currency:       v.GetString("stripe.currency"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		v: v,
	}
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("appName", "EdCore")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromName", "EdCore")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "edcore")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("moodle.timeout", 20*time.Second)
	v.SetDefault("moodle.bulkTimeout", 60*time.Second)
	v.SetDefault("moodle.studentRoleID", 5)

	v.SetDefault("azure.skuID", "6fd2c87f-b296-42f0-b197-1e91e994b900")
	v.SetDefault("azure.domain", "cucusa.org")
	v.SetDefault("azure.graphURL", "https://graph.microsoft.com/v1.0")
	v.SetDefault("azure.loginURL", "https://login.microsoftonline.com")
	v.SetDefault("azure.timeout", 30*time.Second)

	v.SetDefault("stripe.currency", "usd")
}

// Require returns a *ConfigError naming the first of keys that has no value.
func (c *Config) Require(keys ...string) error {
	if c.v == nil {
		return nil
	}
	for _, key := range keys {
		if strings.TrimSpace(c.v.GetString(key)) == "" {
			return NewConfigError(key)
		}
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
