package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AgentConfig holds configuration for the bridge agent.
type AgentConfig struct {
	ServerURL      string        `yaml:"server_url"`
	AgentKey       string        `yaml:"agent_key"`
	AgentID        string        `yaml:"agent_id"`
	AgentName      string        `yaml:"agent_name"`
	Environment    string        `yaml:"environment"`
	DevToolsURL    string        `yaml:"devtools_url"`
	TargetID       string        `yaml:"target_id"`
	StatusAddr     string        `yaml:"status_addr"`
	ReadyDelay     time.Duration `yaml:"ready_delay"`
	ScrollDebounce time.Duration `yaml:"scroll_debounce"`
	Reconnect      bool          `yaml:"reconnect"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// BindFlags populates the struct with defaults from environment variables
// and binds command line flags so main can call flag.Parse().
func (c *AgentConfig) BindFlags() {
	c.ServerURL = getEnv("SERVER_URL", "ws://localhost:8080/api/agents/connect")
	c.AgentKey = getEnv("AGENT_KEY", "")
	c.AgentID = getEnv("AGENT_ID", "")
	c.Environment = getEnv("ENVIRONMENT", "")
	c.DevToolsURL = getEnv("DEVTOOLS_URL", "http://127.0.0.1:9222")
	c.TargetID = getEnv("TARGET_ID", "")
	c.StatusAddr = getEnv("STATUS_ADDR", "")
	rd, _ := time.ParseDuration(getEnv("READY_DELAY", "100ms"))
	c.ReadyDelay = rd
	sd, _ := time.ParseDuration(getEnv("SCROLL_DEBOUNCE", "300ms"))
	c.ScrollDebounce = sd
	if b, err := strconv.ParseBool(getEnv("RECONNECT", "true")); err == nil {
		c.Reconnect = b
	}
	c.LogFile = getEnv("LOG_FILE", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.ConfigFile = getEnv("CONFIG_FILE", "")

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "agent-" + uuid.NewString()[:8]
	}
	c.AgentName = getEnv("AGENT_NAME", host)

	flag.StringVar(&c.ServerURL, "server-url", c.ServerURL, "console server websocket url")
	flag.StringVar(&c.AgentKey, "agent-key", c.AgentKey, "agent authentication key")
	flag.StringVar(&c.AgentID, "agent-id", c.AgentID, "agent identifier; randomly generated if omitted")
	flag.StringVar(&c.AgentName, "agent-name", c.AgentName, "agent display name")
	flag.StringVar(&c.Environment, "environment", c.Environment, "environment id this agent hosts")
	flag.StringVar(&c.DevToolsURL, "devtools-url", c.DevToolsURL, "DevTools endpoint of the browser running the guest document")
	flag.StringVar(&c.TargetID, "target-id", c.TargetID, "DevTools target id; first page target if omitted")
	flag.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "local status HTTP listen address (enables /status)")
	flag.DurationVar(&c.ReadyDelay, "ready-delay", c.ReadyDelay, "delay before the init event is emitted")
	flag.DurationVar(&c.ScrollDebounce, "scroll-debounce", c.ScrollDebounce, "debounce window for unified scroll reporting")
	flag.BoolVar(&c.Reconnect, "reconnect", c.Reconnect, "reconnect to server on failure")
	flag.StringVar(&c.LogFile, "log-file", c.LogFile, "rotated log file path; leave empty for stderr only")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (debug, info, warn, error, none)")
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "agent config file path")
}

// LoadFile populates the config from a YAML file. Flags given explicitly
// on the command line keep precedence over file values.
func (c *AgentConfig) LoadFile(path string) error {
	return loadYAML(path, c)
}
