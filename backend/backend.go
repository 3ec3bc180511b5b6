// Package backend builds the default language model client that plugins use
// and keeps one process-wide instance of it.
//
// The server installs the backend once at startup. Agents obtain it through
// Default, or through ForModel when they need a different model name on the
// same provider.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/agentgate/model"
	"github.com/hupe1980/agentgate/model/anthropic"
	"github.com/hupe1980/agentgate/model/gemini"
	"github.com/hupe1980/agentgate/model/openai"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// ErrNotInstalled is returned when no backend has been installed.
var ErrNotInstalled = errors.New("no default backend installed")

// Config describes how to reach the default model backend.
type Config struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature *float64
	// Info overrides the capabilities reported for OpenAI-compatible
	// endpoints that serve a model the SDK does not know.
	Info *model.Info
}

// Backend creates and caches model clients for one provider configuration.
type Backend struct {
	cfg Config
	def model.Model

	mu      sync.Mutex
	byModel map[string]model.Model
}

// New creates a backend and its default model client.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	def, err := newModel(ctx, cfg, cfg.Model)
	if err != nil {
		return nil, err
	}

	return &Backend{
		cfg:     cfg,
		def:     def,
		byModel: map[string]model.Model{cfg.Model: def},
	}, nil
}

// Config returns the configuration the backend was created with.
func (b *Backend) Config() Config { return b.cfg }

// Default returns the default model client.
func (b *Backend) Default() model.Model { return b.def }

// ForModel returns a client for name on the configured provider. Clients are
// created on first use and cached. An empty name returns the default.
func (b *Backend) ForModel(ctx context.Context, name string) (model.Model, error) {
	if name == "" {
		return b.def, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.byModel[name]; ok {
		return m, nil
	}

	cfg := b.cfg
	if name != cfg.Model {
		// Capability overrides describe the default model only.
		cfg.Info = nil
	}
	m, err := newModel(ctx, cfg, name)
	if err != nil {
		return nil, err
	}
	b.byModel[name] = m
	return m, nil
}

// Models returns the names of the clients created so far, sorted.
func (b *Backend) Models() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.byModel))
	for n := range b.byModel {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close releases every client that holds network resources.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, m := range b.byModel {
		if c, ok := m.(model.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func newModel(ctx context.Context, cfg Config, name string) (model.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if name != "" {
				o.Model = name
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			o.BaseURL = cfg.BaseURL
			o.APIKey = cfg.APIKey
			o.Timeout = cfg.Timeout
			o.MaxRetries = cfg.MaxRetries
			o.Info = cfg.Info
		}), nil
	case ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if name != "" {
				o.Model = anthropicsdk.Model(name)
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			o.BaseURL = cfg.BaseURL
			o.APIKey = cfg.APIKey
			o.Timeout = cfg.Timeout
			o.MaxRetries = cfg.MaxRetries
		}), nil
	case ProviderGemini:
		m, err := gemini.NewModel(ctx, func(o *gemini.Options) {
			if name != "" {
				o.Model = name
			}
			if cfg.Temperature != nil {
				o.Temperature = float32(*cfg.Temperature)
			}
			o.APIKey = cfg.APIKey
			o.Endpoint = cfg.BaseURL
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case ProviderMock:
		return model.NewMockModel(name, ProviderMock), nil
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}

var (
	installedMu sync.RWMutex
	installed   *Backend
)

// Install makes b the process-wide backend and returns the previous one.
func Install(b *Backend) *Backend {
	installedMu.Lock()
	defer installedMu.Unlock()

	prev := installed
	installed = b
	return prev
}

// Installed returns the process-wide backend.
func Installed() (*Backend, error) {
	installedMu.RLock()
	defer installedMu.RUnlock()

	if installed == nil {
		return nil, ErrNotInstalled
	}
	return installed, nil
}

// Default returns the default model of the installed backend.
func Default() (model.Model, error) {
	b, err := Installed()
	if err != nil {
		return nil, err
	}
	return b.Default(), nil
}

// ForModel returns a model of the installed backend by name.
func ForModel(ctx context.Context, name string) (model.Model, error) {
	b, err := Installed()
	if err != nil {
		return nil, err
	}
	return b.ForModel(ctx, name)
}

// Close closes and uninstalls the process-wide backend.
func Close() error {
	b := Install(nil)
	if b == nil {
		return nil
	}
	return b.Close()
}
