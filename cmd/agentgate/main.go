// Command agentgate serves the registered agents through an OpenAI-compatible
// chat completion API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/hupe1980/agentgate"
	"github.com/hupe1980/agentgate/backend"
	"github.com/hupe1980/agentgate/config"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/registry"

	_ "github.com/hupe1980/agentgate/agents/all"
)

// version is set at build time.
var version = "dev"

const banner = `
                          _              _
   __ _  __ _  ___ _ __ | |_ __ _  __ _| |_ ___
  / _' |/ _' |/ _ \ '_ \| __/ _' |/ _' | __/ _ \
 | (_| | (_| |  __/ | | | || (_| | (_| | ||  __/
  \__,_|\__, |\___|_| |_|\__\__, |\__,_|\__\___|
        |___/               |___/
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			color.New(color.FgRed).Fprintln(os.Stderr, "Configuration Error: Failed to load settings. Please ensure that all required settings are properly set.")
			for _, p := range cfgErr.Problems {
				fmt.Fprintf(os.Stderr, "  %s\n", p)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	logger := logging.NewLogger(cfg.Logging())
	logger.Info("config.loaded", "config", cfg)

	b, err := backend.New(ctx, cfg.Backend())
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	backend.Install(b)
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("backend.close", "error", err.Error())
		}
	}()

	gw, err := agentgate.New(func(o *agentgate.Options) {
		o.Registry = registry.Global()
		o.DefaultAgent = cfg.DefaultAgent
		o.AgentDir = cfg.AgentDir
		o.ToolEvents = cfg.ToolEventMode()
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	green.Print("    ▶ ")
	fmt.Printf("Listen:    http://%s/v1\n", cfg.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Backend:   %s (%s)\n", cfg.Backend().Provider, cfg.DefaultLLM)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %s\n", strings.Join(gw.Registry().Names(), ", "))
	green.Print("    ▶ ")
	fmt.Printf("Default:   %s\n\n", cfg.DefaultAgent)

	return gw.ListenAndServe(ctx, cfg.Addr(), cfg.ShutdownGrace())
}
