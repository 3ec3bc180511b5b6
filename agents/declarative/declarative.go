// Package declarative defines agents from YAML or TOML files.
//
// A definition either describes a model agent:
//
//	name: pirate
//	instruction: |
//	  You are {{.agent}}. Answer like a pirate. Today is {{.date}}.
//	model: gpt-4o
//
// or a pipeline that chains registered agents, each step answering the
// output of the step before it:
//
//	name = "pirate-summary"
//	pipeline = ["summarizer", "pirate"]
//
// ${VAR} references are expanded from the environment before parsing.
package declarative

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hupe1980/agentgate/agent"
	"github.com/hupe1980/agentgate/backend"
	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/registry"
	"gopkg.in/yaml.v3"
)

// Definition describes one agent.
type Definition struct {
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
	// Instruction is the system message. It is rendered as a Go template
	// with the variables agent, user_message, date, model and Vars.
	Instruction string `yaml:"instruction" toml:"instruction"`
	// Model overrides the default model name on the configured backend.
	Model              string         `yaml:"model" toml:"model"`
	Streaming          *bool          `yaml:"streaming" toml:"streaming"`
	MaxModelCalls      int            `yaml:"max_model_calls" toml:"max_model_calls"`
	MaxHistoryMessages int            `yaml:"max_history_messages" toml:"max_history_messages"`
	Vars               map[string]any `yaml:"vars" toml:"vars"`
	Pipeline           []string       `yaml:"pipeline" toml:"pipeline"`

	// Source is the file the definition was loaded from.
	Source string `yaml:"-" toml:"-"`
}

// Validate checks the definition on its own.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	if len(d.Pipeline) > 0 {
		if d.Instruction != "" || d.Model != "" {
			return fmt.Errorf("agent %s: pipeline agents take no instruction or model", d.Name)
		}
		for _, step := range d.Pipeline {
			if step == d.Name {
				return fmt.Errorf("agent %s: pipeline refers to itself", d.Name)
			}
		}
	}
	if d.MaxModelCalls < 0 || d.MaxHistoryMessages < 0 {
		return fmt.Errorf("agent %s: limits must not be negative", d.Name)
	}
	return nil
}

// Lookuper finds constructors by agent name.
type Lookuper interface {
	Lookup(name string) (core.Constructor, error)
}

// Constructor returns the constructor of the agent. Pipeline steps are looked
// up in reg when the agent is constructed.
func (d Definition) Constructor(reg Lookuper) core.Constructor {
	if len(d.Pipeline) > 0 {
		return core.ConstructorFunc(func(userMessage string, conv *core.Conversation) (core.Agent, error) {
			steps := make([]agent.Step, 0, len(d.Pipeline))
			for _, name := range d.Pipeline {
				ctor, err := reg.Lookup(name)
				if err != nil {
					return nil, fmt.Errorf("pipeline step %s: %w", name, err)
				}
				steps = append(steps, agent.Step{Name: name, Constructor: ctor})
			}
			return agent.NewSequentialAgent(d.Name, userMessage, conv, steps...), nil
		})
	}

	return core.ConstructorFunc(func(userMessage string, conv *core.Conversation) (core.Agent, error) {
		llm, err := backend.ForModel(context.Background(), d.Model)
		if err != nil {
			return nil, err
		}
		a := agent.NewModelAgent(d.Name, llm, userMessage, conv, func(o *agent.ModelAgentOptions) {
			o.Instruction = agent.NewInstructionFromTemplate(d.Instruction)
			o.Vars = d.Vars
			if d.Streaming != nil {
				o.EnableStreaming = *d.Streaming
			}
			if d.MaxModelCalls > 0 {
				o.MaxModelCalls = d.MaxModelCalls
			}
			o.MaxHistoryMessages = d.MaxHistoryMessages
		})
		a.SetDescription(d.Description)
		return a, nil
	})
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Parse decodes a definition. format is "yaml" or "toml".
func Parse(data []byte, format string) (Definition, error) {
	expanded := expandEnvVars(string(data))

	var d Definition
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal([]byte(expanded), &d); err != nil {
			return Definition{}, fmt.Errorf("parsing yaml: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(expanded, &d); err != nil {
			return Definition{}, fmt.Errorf("parsing toml: %w", err)
		}
	default:
		return Definition{}, fmt.Errorf("unsupported format %q", format)
	}
	return d, d.Validate()
}

// LoadFile reads one definition file. The format follows the extension.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("reading agent file: %w", err)
	}
	d, err := Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	d.Source = path
	return d, nil
}

// LoadDir reads every .yaml, .yml and .toml file in dir, in name order.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading agent dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".toml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	defs := make([]Definition, 0, len(files))
	for _, f := range files {
		d, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Register adds the definitions to reg. Pipelines that form a cycle are
// rejected.
func Register(reg *registry.Registry, defs ...Definition) error {
	if err := checkCycles(defs); err != nil {
		return err
	}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
		if err := reg.Register(d.Name, d.Constructor(reg)); err != nil {
			return fmt.Errorf("register %s: %w", d.Name, err)
		}
	}
	return nil
}

// RegisterDir loads dir and registers its definitions. It returns the names
// registered.
func RegisterDir(reg *registry.Registry, dir string) ([]string, error) {
	defs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	if err := Register(reg, defs...); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names, nil
}

func checkCycles(defs []Definition) error {
	pipelines := make(map[string][]string, len(defs))
	for _, d := range defs {
		if len(d.Pipeline) > 0 {
			pipelines[d.Name] = d.Pipeline
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	state := map[string]int{}

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("pipeline cycle: %s", strings.Join(append(path, name), " -> "))
		case done:
			return nil
		}
		state[name] = visiting
		for _, step := range pipelines[name] {
			if err := visit(step, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
