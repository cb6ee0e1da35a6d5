package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var defineFlagsOnce sync.Once

// Load loads configuration with the following precedence:
// 1. Explicit overrides (v.Set) – used only for password file/prompt
// 2. Command line flags
// 3. Environment variables (ORMCORE_*)
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("ormcore")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/ormcore/")
		v.AddConfigPath("$HOME/.ormcore")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys: dot + snake_case. Env vars: ORMCORE_DATABASE_HOST.
	v.SetEnvPrefix("ORMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v)

	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readPasswordFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read database password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 4000)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.tls_mode", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("mutation.isolation", "default")

	v.SetDefault("observability.service_name", "ormcore")
	v.SetDefault("observability.service_version", "dev")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
}

func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("config", "", "Path to config file")
		pflag.String("db-driver", "", "Database driver (mysql, postgres, sqlite)")
		pflag.String("db-host", "", "Database host")
		pflag.Int("db-port", 0, "Database port")
		pflag.String("db-user", "", "Database user")
		pflag.String("db-password-file", "", "File containing the database password")
		pflag.Bool("db-password-prompt", false, "Prompt for the database password")
		pflag.String("db-name", "", "Database name")
		pflag.String("log-level", "", "Log level (debug, info, warn, error)")
		pflag.String("log-format", "", "Log format (json, text)")
	})
}

// bindChangedFlagsToViper copies set flags into viper so flags outrank
// env vars and file values, but unset flags never mask them.
func bindChangedFlagsToViper(v *viper.Viper) {
	bindings := map[string]string{
		"db-driver":          "database.driver",
		"db-host":            "database.host",
		"db-port":            "database.port",
		"db-user":            "database.user",
		"db-password-file":   "database.password_file",
		"db-password-prompt": "database.password_prompt",
		"db-name":            "database.database",
		"log-level":          "observability.logging.level",
		"log-format":         "observability.logging.format",
	}
	for flagName, key := range bindings {
		f := pflag.Lookup(flagName)
		if f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
}

func readPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func promptPassword() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password prompt requires an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "Database password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
