// Package config loads the CLI configuration from config files, dotenv
// files, and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/seed"
)

// AppFs is the filesystem the CLI reads through; tests swap in a memory fs.
var AppFs = afero.NewOsFs()

// Config holds everything the CLI needs to reach the database and run the
// engine. No process-wide flags: the struct is passed explicitly.
type Config struct {
	DatabaseURL string
	Provider    dbx.Provider
	Host        string
	Port        int
	Name        string
	User        string
	Password    string

	Environment seed.Environment

	// MigrationsDir optionally adds SQL file units to the built-in registry.
	MigrationsDir string

	// LockTimeoutSeconds bounds the wait for a competing runner.
	LockTimeoutSeconds int
}

// Load reads configuration from .eotydb.yaml (working dir, $HOME,
// $HOME/.config/eotydb), EOTYDB_* environment variables, and .env files.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	viper.SetConfigName(".eotydb")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(home)
	viper.AddConfigPath(filepath.Join(home, ".config", "eotydb"))

	viper.SetEnvPrefix("EOTYDB")
	viper.AutomaticEnv()

	viper.SetDefault("provider", "postgres")
	viper.SetDefault("environment", "development")
	viper.SetDefault("host", "localhost")
	viper.SetDefault("port", 5432)
	viper.SetDefault("lock_timeout_seconds", 30)

	// Config file is optional.
	_ = viper.ReadInConfig()

	if ok, _ := afero.Exists(AppFs, ".env"); ok {
		_ = godotenv.Load()
	}
	if ok, _ := afero.Exists(AppFs, ".env.local"); ok {
		_ = godotenv.Overload(".env.local")
	}

	provider, err := dbx.ParseProvider(viper.GetString("provider"))
	if err != nil {
		return nil, err
	}
	env, err := seed.ParseEnvironment(firstNonEmpty(
		os.Getenv("EOTYDB_ENVIRONMENT"), viper.GetString("environment")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:        firstNonEmpty(os.Getenv("DATABASE_URL"), viper.GetString("database_url")),
		Provider:           provider,
		Host:               viper.GetString("host"),
		Port:               viper.GetInt("port"),
		Name:               viper.GetString("name"),
		User:               viper.GetString("user"),
		Password:           viper.GetString("password"),
		Environment:        env,
		MigrationsDir:      viper.GetString("migrations_dir"),
		LockTimeoutSeconds: viper.GetInt("lock_timeout_seconds"),
	}
	return cfg, nil
}

// DSN builds the driver connection string. DATABASE_URL wins when set.
func (c *Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	switch c.Provider {
	case dbx.Postgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:   c.Name,
		}
		q := u.Query()
		q.Set("sslmode", "disable")
		u.RawQuery = q.Encode()
		return u.String(), nil
	case dbx.MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Name), nil
	case dbx.SQLite:
		if c.Name == "" {
			return "", fmt.Errorf("sqlite requires a database file name")
		}
		return c.Name, nil
	}
	return "", fmt.Errorf("unsupported provider %s", c.Provider)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
