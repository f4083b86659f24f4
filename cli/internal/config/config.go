package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/schemadelta/migrate/database"
	"github.com/satishbabariya/schemadelta/migrate/field"
)

// AppFs is the filesystem config, .env and .delta files are read from.
// Tests swap it for an in-memory one.
var AppFs = afero.NewOsFs()

// Config holds the application configuration
type Config struct {
	DatabaseURL   string
	Provider      string
	AuthUserModel string
	MigrationsDir string
	LogLevel      string
}

// Settings returns the settings swappable references resolve against.
func (c *Config) Settings() field.Settings {
	return field.Settings{field.AuthUserModel: c.AuthUserModel}
}

// LoadConfig loads configuration from the default locations.
func LoadConfig() (*Config, error) {
	return Load(viper.New(), "")
}

// Load reads configuration into v. configFile overrides the search path.
//
// The database URL is taken from, in order: the DATABASE_URL environment
// variable, .env.local, .env, then database_url from SCHEMADELTA_DATABASE_URL
// or the config file.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v.SetFs(AppFs)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".schemadelta")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "schemadelta"))
	}

	v.SetEnvPrefix("SCHEMADELTA")
	v.AutomaticEnv()

	v.SetDefault("provider", "")
	v.SetDefault("auth_user_model", "auth.User")
	v.SetDefault("migrations_dir", "")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	dotenv, err := readDotenv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Provider:      v.GetString("provider"),
		AuthUserModel: v.GetString("auth_user_model"),
		LogLevel:      strings.ToLower(v.GetString("log_level")),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = dotenv["DATABASE_URL"]
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = v.GetString("database_url")
	}
	if cfg.Provider == "" && cfg.DatabaseURL != "" {
		cfg.Provider = database.DetectProvider(cfg.DatabaseURL)
	}
	if dir := v.GetString("migrations_dir"); dir != "" {
		if cfg.MigrationsDir, err = homedir.Expand(dir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// readDotenv merges .env and .env.local; .env.local wins.
func readDotenv() (map[string]string, error) {
	values := make(map[string]string)
	for _, name := range []string{".env", ".env.local"} {
		f, err := AppFs.Open(name)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		parsed, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		for k, val := range parsed {
			values[k] = val
		}
	}
	return values, nil
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config) error {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("database_url", cfg.DatabaseURL)
	v.Set("provider", cfg.Provider)
	v.Set("auth_user_model", cfg.AuthUserModel)
	v.Set("migrations_dir", cfg.MigrationsDir)
	v.Set("log_level", cfg.LogLevel)

	home, err := homedir.Dir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(home, ".config", "schemadelta")
	if err := AppFs.MkdirAll(configPath, 0755); err != nil {
		return err
	}

	configFile := filepath.Join(configPath, ".schemadelta.yaml")
	return v.WriteConfigAs(configFile)
}
