package config

import "time"

// Plan represents the provision.yaml configuration
type Plan struct {
	Target   TargetConfig `yaml:"target"`
	Defaults Defaults     `yaml:"defaults,omitempty"`
	Steps    []StepConfig `yaml:"steps"`
}

// TargetConfig describes the host the plan runs against
type TargetConfig struct {
	// Host accepts a bare host or user@host[:port]
	Host string `yaml:"host"`
	User string `yaml:"user,omitempty"`
	Port int    `yaml:"port,omitempty"`
	// KnownHosts overrides ~/.ssh/known_hosts
	KnownHosts            string           `yaml:"known_hosts,omitempty"`
	InsecureIgnoreHostKey bool             `yaml:"insecure_ignore_host_key,omitempty"`
	Credential            CredentialConfig `yaml:"credential,omitempty"`
}

// CredentialConfig says where the password comes from. The password
// itself never lives in the plan.
type CredentialConfig struct {
	// Env names the environment variable holding the password
	Env string `yaml:"env,omitempty"`
	// SecretURL points at a secret encrypted with the secret store
	SecretURL string `yaml:"secret_url,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// Defaults apply to every step unless overridden
type Defaults struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// StepConfig is one command of the plan
type StepConfig struct {
	Name    string        `yaml:"name,omitempty"`
	Run     string        `yaml:"run"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// HostSpec is a parsed user@host:port string
type HostSpec struct {
	User string
	Host string
	Port int
}
