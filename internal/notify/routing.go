package notify

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Routing maps workflow events to Slack channels. Rules are evaluated in
// order; the first match wins, DefaultChannel catches the rest.
type Routing struct {
	DefaultChannel string `yaml:"default_channel"`
	Rules          []Rule `yaml:"rules"`
}

// Rule routes events for one permit type and/or action set to a channel.
// An empty PermitType or Actions list matches anything.
type Rule struct {
	PermitType string   `yaml:"permit_type"`
	Actions    []string `yaml:"actions"`
	Channel    string   `yaml:"channel"`
}

// ChannelFor returns the channel for a permit type and action, or the
// default when no rule matches.
func (r *Routing) ChannelFor(permitType, action string) string {
	for _, rule := range r.Rules {
		if rule.PermitType != "" && rule.PermitType != permitType {
			continue
		}
		if len(rule.Actions) > 0 && !contains(rule.Actions, action) {
			continue
		}
		return rule.Channel
	}
	return r.DefaultChannel
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LoadRouting reads and parses a YAML routing file, expanding env vars.
func LoadRouting(path string) (*Routing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing: read %s: %w", path, err)
	}
	return LoadRoutingBytes(raw)
}

// LoadRoutingBytes parses a YAML routing file from bytes (useful for
// testing).
func LoadRoutingBytes(data []byte) (*Routing, error) {
	expanded := expandEnvVars(string(data))
	var r Routing
	if err := yaml.Unmarshal([]byte(expanded), &r); err != nil {
		return nil, fmt.Errorf("routing: parse: %w", err)
	}
	return &r, nil
}

var envVarPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		return os.Getenv(name)
	})
}
