package config

import (
	"flag"
	"strconv"
	"time"
)

// ServerConfig holds configuration for the host console server.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	APIKey         string        `yaml:"api_key"`
	AgentKey       string        `yaml:"agent_key"`
	WSPath         string        `yaml:"ws_path"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	ConsoleCap     int           `yaml:"console_cap"`
	CatalogSource  string        `yaml:"catalog_source"`
	DBPath         string        `yaml:"db_path"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables
// and binds command line flags so main can call flag.Parse().
func (c *ServerConfig) BindFlags() {
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	c.Port = port
	c.APIKey = getEnv("API_KEY", "")
	c.AgentKey = getEnv("AGENT_KEY", "")
	c.WSPath = getEnv("WS_PATH", "/api/agents/connect")
	ct, _ := time.ParseDuration(getEnv("COMMAND_TIMEOUT", "30s"))
	c.CommandTimeout = ct
	rt, _ := time.ParseDuration(getEnv("READY_TIMEOUT", "5s"))
	c.ReadyTimeout = rt
	cc, _ := strconv.Atoi(getEnv("CONSOLE_CAP", "100"))
	c.ConsoleCap = cc
	c.CatalogSource = getEnv("CATALOG_SOURCE", "data/environments.json")
	c.DBPath = getEnv("DB_PATH", "")
	c.LogFile = getEnv("LOG_FILE", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.ConfigFile = getEnv("CONFIG_FILE", "")

	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the console API")
	flag.StringVar(&c.APIKey, "api-key", c.APIKey, "client API key required for HTTP requests; leave empty to disable auth")
	flag.StringVar(&c.AgentKey, "agent-key", c.AgentKey, "shared key agents must present when registering")
	flag.StringVar(&c.WSPath, "ws-path", c.WSPath, "path agents use to establish WebSocket connections")
	flag.DurationVar(&c.CommandTimeout, "command-timeout", c.CommandTimeout, "maximum duration to wait for a command response")
	flag.DurationVar(&c.ReadyTimeout, "ready-timeout", c.ReadyTimeout, "maximum duration to wait for environment readiness before proceeding")
	flag.IntVar(&c.ConsoleCap, "console-cap", c.ConsoleCap, "maximum retained console entries; oldest are evicted")
	flag.StringVar(&c.CatalogSource, "catalog", c.CatalogSource, "environment catalog URL or local JSON file")
	flag.StringVar(&c.DBPath, "db", c.DBPath, "sqlite event log path; leave empty to disable persistence")
	flag.StringVar(&c.LogFile, "log-file", c.LogFile, "rotated log file path; leave empty for stderr only")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (debug, info, warn, error, none)")
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
}

// LoadFile populates the config from a YAML file. Flags given explicitly
// on the command line keep precedence over file values.
func (c *ServerConfig) LoadFile(path string) error {
	return loadYAML(path, c)
}
