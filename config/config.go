package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentgate/backend"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/stream"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the server.
type Config struct {
	BackendProvider       string `yaml:"backend_provider"`
	BackendURL            string `yaml:"backend_url"`
	BackendAPIKey         string `yaml:"backend_api_key"`
	BackendRequestTimeout int    `yaml:"backend_request_timeout"` // seconds
	BackendMaxRetries     int    `yaml:"backend_max_retries"`

	DefaultLLM                string  `yaml:"default_llm"`
	DefaultLLMFamily          *string `yaml:"default_llm_family"`
	DefaultLLMFunctionCalling *bool   `yaml:"default_llm_function_calling"`
	DefaultLLMJSONOutput      *bool   `yaml:"default_llm_json_output"`
	DefaultLLMVision          *bool   `yaml:"default_llm_vision"`

	DefaultAgent string `yaml:"default_agent"`

	ServerHost      string `yaml:"server_host"`
	ServerPort      int    `yaml:"server_port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds

	AgentDir   string `yaml:"agent_dir"`
	DebugLog   bool   `yaml:"debug_log"`
	LogFormat  string `yaml:"log_format"`
	ToolEvents string `yaml:"tool_events"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		BackendProvider:       backend.ProviderOpenAI,
		BackendRequestTimeout: 60,
		DefaultLLM:            "gpt-4o-mini",
		DefaultAgent:          "passthrough",
		ServerHost:            "0.0.0.0",
		ServerPort:            11435,
		ShutdownTimeout:       10,
		LogFormat:             "text",
		ToolEvents:            string(stream.ToolEventsSuppress),
	}
}

func (c *Config) fields() []field {
	return []field{
		{"backend_provider", "Model backend provider (openai, anthropic, gemini, mock)", stringValue{&c.BackendProvider}},
		{"backend_url", "Backend base URL (empty selects the provider default)", stringValue{&c.BackendURL}},
		{"backend_api_key", "Backend API key (falls back to OPENAI_API_KEY)", stringValue{&c.BackendAPIKey}},
		{"backend_request_timeout", "Timeout for backend requests in seconds", intValue{&c.BackendRequestTimeout}},
		{"backend_max_retries", "Retries for failed backend requests", intValue{&c.BackendMaxRetries}},
		{"default_llm", "Default model name", stringValue{&c.DefaultLLM}},
		{"default_llm_family", "Default model family", optStringValue{&c.DefaultLLMFamily}},
		{"default_llm_function_calling", "Whether the default model supports function calling", optBoolValue{&c.DefaultLLMFunctionCalling}},
		{"default_llm_json_output", "Whether the default model supports JSON output", optBoolValue{&c.DefaultLLMJSONOutput}},
		{"default_llm_vision", "Whether the default model supports vision", optBoolValue{&c.DefaultLLMVision}},
		{"default_agent", "Agent used when the requested model is unknown", stringValue{&c.DefaultAgent}},
		{"server_host", "Host to listen on", stringValue{&c.ServerHost}},
		{"server_port", "Port to listen on", intValue{&c.ServerPort}},
		{"shutdown_timeout", "Graceful shutdown timeout in seconds", intValue{&c.ShutdownTimeout}},
		{"agent_dir", "Directory of declarative agent definitions", stringValue{&c.AgentDir}},
		{"debug_log", "Enable debug logging", boolValue{&c.DebugLog}},
		{"log_format", "Log format (text, json, pretty)", stringValue{&c.LogFormat}},
		{"tool_events", "How tool events are streamed (suppress, comment)", stringValue{&c.ToolEvents}},
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Name is the program name used in flag usage output.
	Name string
	// EnvFile is the dotenv file to read. Missing files are ignored.
	EnvFile string
	// LookupEnv reads process environment variables.
	LookupEnv func(key string) (string, bool)
	// Output receives flag usage and parse errors.
	Output io.Writer
}

// Load builds the configuration from defaults, the optional YAML file, the
// dotenv file, the environment and the command-line arguments, then
// validates it. flag.ErrHelp is returned unchanged when -h is given.
func Load(args []string, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{
		Name:      "agentgate",
		EnvFile:   ".env",
		LookupEnv: os.LookupEnv,
		Output:    os.Stderr,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	// Flags are parsed into a scratch copy first; only the ones actually
	// given are applied, after every other source.
	scratch := Default()
	flags := flag.NewFlagSet(opts.Name, flag.ContinueOnError)
	flags.SetOutput(opts.Output)
	configPath := flags.String("config", "", "Path to a YAML configuration file")
	for _, f := range scratch.fields() {
		flags.Var(f.value, f.name, f.usage)
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	dotenv, err := readDotEnv(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := opts.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path, _ = lookup("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path, lookup); err != nil {
			return nil, err
		}
	}

	var problems []string
	for _, f := range cfg.fields() {
		v, ok := lookup(strings.ToUpper(f.name))
		if !ok {
			continue
		}
		if err := f.value.Set(v); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", strings.ToUpper(f.name), err))
		}
	}
	if cfg.BackendAPIKey == "" {
		if v, ok := lookup("OPENAI_API_KEY"); ok {
			cfg.BackendAPIKey = v
		}
	}

	given := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { given[f.Name] = true })
	for _, f := range cfg.fields() {
		if !given[f.name] {
			continue
		}
		if err := f.value.Set(flags.Lookup(f.name).Value.String()); err != nil {
			problems = append(problems, fmt.Sprintf("--%s: %v", f.name, err))
		}
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return values, nil
}

func (c *Config) loadFile(path string, lookup func(string) (string, bool)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data), lookup)
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns. Unset variables expand to the
// empty string.
func expandEnvVars(s string, lookup func(string) (string, bool)) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		v, _ := lookup(envVarPattern.FindStringSubmatch(match)[1])
		return v
	})
}

// ConfigError lists every invalid or missing setting.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// Validate checks the configuration and returns a *ConfigError describing
// every problem found.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.BackendProvider) {
	case backend.ProviderOpenAI, backend.ProviderAnthropic, backend.ProviderGemini:
		if c.BackendAPIKey == "" {
			add("backend_api_key is required (or set OPENAI_API_KEY)")
		}
	case backend.ProviderMock:
	default:
		add("backend_provider %q is not supported", c.BackendProvider)
	}
	if c.BackendRequestTimeout <= 0 {
		add("backend_request_timeout must be positive")
	}
	if c.BackendMaxRetries < 0 {
		add("backend_max_retries must not be negative")
	}
	if c.DefaultLLM == "" {
		add("default_llm is required")
	}
	if missing := c.missingModelInfo(); len(missing) > 0 {
		add("incomplete model info configuration, missing: %s", strings.Join(missing, ", "))
	}
	if c.DefaultAgent == "" {
		add("default_agent is required")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		add("server_port %d is out of range", c.ServerPort)
	}
	if c.ShutdownTimeout < 0 {
		add("shutdown_timeout must not be negative")
	}
	switch c.LogFormat {
	case "text", "json", "pretty":
	default:
		add("log_format %q is not supported", c.LogFormat)
	}
	if _, err := stream.ParseToolEventMode(c.ToolEvents); err != nil {
		add("tool_events: %v", err)
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// missingModelInfo returns the model info fields that are unset, or nil when
// all or none are set.
func (c *Config) missingModelInfo() []string {
	set := map[string]bool{
		"default_llm_family":           c.DefaultLLMFamily != nil,
		"default_llm_function_calling": c.DefaultLLMFunctionCalling != nil,
		"default_llm_json_output":      c.DefaultLLMJSONOutput != nil,
		"default_llm_vision":           c.DefaultLLMVision != nil,
	}
	var missing []string
	for _, name := range []string{"default_llm_family", "default_llm_function_calling", "default_llm_json_output", "default_llm_vision"} {
		if !set[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == len(set) {
		return nil
	}
	return missing
}

// ModelInfo returns the configured capabilities of the default model, or nil
// when none are configured.
func (c *Config) ModelInfo() *model.Info {
	if c.DefaultLLMFamily == nil || c.DefaultLLMFunctionCalling == nil ||
		c.DefaultLLMJSONOutput == nil || c.DefaultLLMVision == nil {
		return nil
	}
	return &model.Info{
		Name:            c.DefaultLLM,
		Provider:        strings.ToLower(c.BackendProvider),
		Family:          *c.DefaultLLMFamily,
		SupportsTools:   *c.DefaultLLMFunctionCalling,
		SupportsJSON:    *c.DefaultLLMJSONOutput,
		SupportsVision:  *c.DefaultLLMVision,
		SupportsStreams: true,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// RequestTimeout returns the backend request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.BackendRequestTimeout) * time.Second
}

// ShutdownGrace returns the graceful shutdown timeout.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// ToolEventMode returns the parsed tool_events setting.
func (c *Config) ToolEventMode() stream.ToolEventMode {
	mode, err := stream.ParseToolEventMode(c.ToolEvents)
	if err != nil {
		return stream.ToolEventsSuppress
	}
	return mode
}

// Backend returns the settings of the default model backend.
func (c *Config) Backend() backend.Config {
	return backend.Config{
		Provider:   strings.ToLower(c.BackendProvider),
		BaseURL:    c.BackendURL,
		APIKey:     c.BackendAPIKey,
		Model:      c.DefaultLLM,
		Timeout:    c.RequestTimeout(),
		MaxRetries: c.BackendMaxRetries,
		Info:       c.ModelInfo(),
	}
}

// Logging returns the logger settings.
func (c *Config) Logging() *logging.Config {
	cfg := logging.DefaultConfig()
	if c.DebugLog {
		cfg.Level = logging.LogLevelDebug
	}
	cfg.Format = c.LogFormat
	return cfg
}

// LogValue implements slog.LogValuer. The API key is masked.
func (c *Config) LogValue() slog.Value {
	key := ""
	if c.BackendAPIKey != "" {
		key = "****"
	}
	attrs := []slog.Attr{
		slog.String("backend_provider", c.BackendProvider),
		slog.String("backend_url", c.BackendURL),
		slog.String("backend_api_key", key),
		slog.Int("backend_request_timeout", c.BackendRequestTimeout),
		slog.Int("backend_max_retries", c.BackendMaxRetries),
		slog.String("default_llm", c.DefaultLLM),
		slog.String("default_agent", c.DefaultAgent),
		slog.String("server_host", c.ServerHost),
		slog.Int("server_port", c.ServerPort),
		slog.String("agent_dir", c.AgentDir),
		slog.Bool("debug_log", c.DebugLog),
		slog.String("log_format", c.LogFormat),
		slog.String("tool_events", c.ToolEvents),
	}
	if info := c.ModelInfo(); info != nil {
		attrs = append(attrs,
			slog.String("default_llm_family", info.Family),
			slog.Bool("default_llm_function_calling", info.SupportsTools),
			slog.Bool("default_llm_json_output", info.SupportsJSON),
			slog.Bool("default_llm_vision", info.SupportsVision),
		)
	}
	return slog.GroupValue(attrs...)
}
