package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config описывает основные параметры демона.
type Config struct {
	Agent struct {
		Mode     string `yaml:"mode"`
		LogLevel string `yaml:"log_level"`
		// Operator используется как subject консольного транспорта.
		Operator string `yaml:"operator"`
	} `yaml:"agent"`
	Security struct {
		AuthAllowlist map[string][]string `yaml:"auth_allowlist"`
		RateLimit     struct {
			Tokens          int `yaml:"tokens"`
			IntervalSeconds int `yaml:"interval_seconds"`
		} `yaml:"rate_limit"`
	} `yaml:"security"`
	SQLite struct {
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"sqlite"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"scheduler"`
	Web struct {
		Enabled            bool              `yaml:"enabled"`
		ListenAddr         string            `yaml:"listen_addr"`
		ReadTimeoutMS      int               `yaml:"read_timeout_ms"`
		WriteTimeoutMS     int               `yaml:"write_timeout_ms"`
		RequestTimeoutMS   int               `yaml:"request_timeout_ms"`
		ShutdownTimeoutS   int               `yaml:"shutdown_timeout_s"`
		MaxBodyBytes       int64             `yaml:"max_body_bytes"`
		// AllowSubjectHeader разрешает X-Subject-ID без токена; только для loopback.
		AllowSubjectHeader bool              `yaml:"allow_subject_header"`
		Tokens             map[string]string `yaml:"tokens"`
	} `yaml:"web"`
	IPC struct {
		SocketPath   string `yaml:"socket_path"`
		LockPath     string `yaml:"lock_path"`
		RemoteSocket string `yaml:"remote_socket"`
	} `yaml:"ipc"`
	Sysfs struct {
		Root string `yaml:"root"`
	} `yaml:"sysfs"`
	Properties struct {
		Files []string `yaml:"files"`
	} `yaml:"properties"`
	Vibrator struct {
		LEDDir string `yaml:"led_dir"`
	} `yaml:"vibrator"`
	UEvent struct {
		Enabled    bool     `yaml:"enabled"`
		Subsystems []string `yaml:"subsystems"`
	} `yaml:"uevent"`
	AtFwd struct {
		// Routes сопоставляет имя AT-команды строке "module command";
		// токены команды передаются как аргументы.
		Routes map[string]string `yaml:"routes"`
	} `yaml:"atfwd"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	var cfg Config
	cfg.Agent.Mode = "cli"
	cfg.Agent.LogLevel = "info"
	cfg.Agent.Operator = "operator"
	cfg.SQLite.Path = "/var/lib/hwshim/state.db"
	cfg.SQLite.RetentionDays = 30
	cfg.Scheduler.IntervalSeconds = 60
	cfg.Security.RateLimit.Tokens = 5
	cfg.Security.RateLimit.IntervalSeconds = 1
	cfg.Web.Enabled = false
	cfg.Web.ListenAddr = "127.0.0.1:8080"
	cfg.Web.ReadTimeoutMS = 2000
	cfg.Web.WriteTimeoutMS = 5000
	cfg.Web.RequestTimeoutMS = 3000
	cfg.Web.ShutdownTimeoutS = 5
	cfg.Web.MaxBodyBytes = 1 << 20
	cfg.IPC.SocketPath = "/run/hwshim/binder.sock"
	cfg.IPC.LockPath = "/run/hwshim/hwshim.lock"
	cfg.Properties.Files = []string{"/system/build.prop", "/etc/hwshim/device.prop"}
	cfg.Vibrator.LEDDir = "/sys/class/leds/vibrator"
	cfg.UEvent.Enabled = true
	cfg.UEvent.Subsystems = []string{"memory", "power_supply"}
	cfg.AtFwd.Routes = map[string]string{
		"+CKPD": "wm tap",
		"+CVIB": "vibrator on",
	}
	cfg.Security.AuthAllowlist = map[string][]string{
		"console": {"operator"},
		"web":     {},
		"ipc":     {"atfwd"},
	}
	return cfg
}

// Load читает конфиг из файла YAML, поверх значений по умолчанию.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- путь к конфигу задается доверенным оператором/CI.
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c Config) Validate() error {
	var errs []error
	if c.Scheduler.IntervalSeconds < 0 {
		errs = append(errs, errors.New("scheduler.interval_seconds must not be negative"))
	}
	if c.SQLite.RetentionDays < 0 {
		errs = append(errs, errors.New("sqlite.retention_days must not be negative"))
	}
	if c.Security.RateLimit.Tokens < 0 || c.Security.RateLimit.IntervalSeconds < 0 {
		errs = append(errs, errors.New("security.rate_limit values must not be negative"))
	}
	if c.Agent.Mode == "daemon" && strings.TrimSpace(c.IPC.SocketPath) == "" {
		errs = append(errs, errors.New("ipc.socket_path is required in daemon mode"))
	}
	if c.Web.Enabled && strings.TrimSpace(c.Web.ListenAddr) == "" {
		errs = append(errs, errors.New("web.listen_addr is required when web is enabled"))
	}
	for name, target := range c.AtFwd.Routes {
		if _, _, err := ParseRoute(target); err != nil {
			errs = append(errs, fmt.Errorf("atfwd.routes[%s]: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ParseRoute разбирает цель маршрута "module command".
func ParseRoute(target string) (module, command string, err error) {
	fields := strings.Fields(target)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("route %q: expected \"module command\"", target)
	}
	return fields[0], fields[1], nil
}
