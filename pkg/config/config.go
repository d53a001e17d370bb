// Package config loads and validates the network configuration: agent
// type definitions, skills, recovery thresholds, and storage paths.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agentnet/pkg/agent"
	"agentnet/pkg/network"
	"agentnet/pkg/proto"
	"agentnet/pkg/skills"
)

// Default file locations and listen addresses.
const (
	DefaultConfigFile  = "agentnet.yaml"
	DefaultDatabase    = "agentnet.db"
	DefaultEventLogDir = "logs/events"
	DefaultMetricsAddr = ":9090"
)

// RequirementCfg is one dependency precondition in the config file.
type RequirementCfg struct {
	AgentType      string   `yaml:"agent_type"`
	RequiredStates []string `yaml:"required_states"`
	Skill          string   `yaml:"skill,omitempty"`
	Optional       bool     `yaml:"optional,omitempty"`
}

// TransitionCfg is one edge of a type's state graph, optionally gated
// by requirements on the agent's dependencies.
type TransitionCfg struct {
	From         string           `yaml:"from"`
	To           string           `yaml:"to"`
	Requirements []RequirementCfg `yaml:"requirements,omitempty"`
}

// AgentTypeCfg defines the full state machine for one agent type.
type AgentTypeCfg struct {
	Name        string          `yaml:"name"`
	Initial     string          `yaml:"initial"`
	Terminals   []string        `yaml:"terminals"`
	Transitions []TransitionCfg `yaml:"transitions"`
	AutoAdvance bool            `yaml:"auto_advance,omitempty"`
	Skills      []string        `yaml:"skills,omitempty"`
}

// StorageCfg holds the persistence and journal locations.
type StorageCfg struct {
	Database    string `yaml:"database"`
	EventLogDir string `yaml:"event_log_dir"`
}

// MetricsCfg holds the Prometheus endpoints.
type MetricsCfg struct {
	ListenAddr    string `yaml:"listen_addr"`
	PrometheusURL string `yaml:"prometheus_url,omitempty"`
}

// Config is the root of the configuration file.
type Config struct {
	AgentTypes []AgentTypeCfg         `yaml:"agent_types"`
	Recovery   network.RecoveryPolicy `yaml:"recovery"`
	Storage    StorageCfg             `yaml:"storage"`
	Metrics    MetricsCfg             `yaml:"metrics"`
}

// Load reads, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage.Database == "" {
		c.Storage.Database = DefaultDatabase
	}
	if c.Storage.EventLogDir == "" {
		c.Storage.EventLogDir = DefaultEventLogDir
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = DefaultMetricsAddr
	}
	c.Recovery = c.Recovery.WithDefaults()
}

func (c *Config) validate() error {
	if len(c.AgentTypes) == 0 {
		return fmt.Errorf("no agent types defined")
	}

	seen := make(map[string]bool)
	for _, t := range c.AgentTypes {
		if t.Name == "" {
			return fmt.Errorf("agent type with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("agent type %s defined twice", t.Name)
		}
		seen[t.Name] = true

		if t.Initial == "" {
			return fmt.Errorf("agent type %s has no initial state", t.Name)
		}
		if len(t.Transitions) == 0 {
			return fmt.Errorf("agent type %s has no transitions", t.Name)
		}
		for _, tr := range t.Transitions {
			if tr.From == "" || tr.To == "" {
				return fmt.Errorf("agent type %s has a transition with empty endpoint", t.Name)
			}
		}
	}

	// Requirements must point at defined types.
	for _, t := range c.AgentTypes {
		for _, tr := range t.Transitions {
			for _, req := range tr.Requirements {
				if !seen[req.AgentType] {
					return fmt.Errorf("agent type %s requires undefined type %s", t.Name, req.AgentType)
				}
			}
		}
	}

	if c.Recovery.StuckThreshold < time.Second {
		return fmt.Errorf("stuck_threshold %s is below one second", c.Recovery.StuckThreshold)
	}
	return nil
}

// BuildRegistries converts the declarative type definitions into the
// validated runtime registries.
func (c *Config) BuildRegistries() (*agent.Registry, *skills.Registry, error) {
	types := agent.NewRegistry()
	sk := skills.NewRegistry()

	for _, t := range c.AgentTypes {
		g := agent.NewStateGraph(proto.AgentType(t.Name), proto.State(t.Initial))
		g.AutoAdvance = t.AutoAdvance

		for _, tr := range t.Transitions {
			g.AddTransition(proto.State(tr.From), proto.State(tr.To))
			for _, req := range tr.Requirements {
				states := make([]proto.State, len(req.RequiredStates))
				for i, s := range req.RequiredStates {
					states[i] = proto.State(s)
				}
				g.Require(proto.State(tr.From), proto.State(tr.To), proto.StateRequirement{
					AgentType:      proto.AgentType(req.AgentType),
					RequiredStates: states,
					Skill:          req.Skill,
					Optional:       req.Optional,
				})
			}
		}
		for _, term := range t.Terminals {
			g.AddTerminal(proto.State(term))
		}

		if err := types.Register(g); err != nil {
			return nil, nil, fmt.Errorf("failed to build type %s: %w", t.Name, err)
		}
		for _, s := range t.Skills {
			sk.Register(proto.AgentType(t.Name), skills.Definition{Name: s})
		}
	}
	return types, sk, nil
}
