package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/sequencer"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// ErrPlanNotFound is returned when the plan location does not exist.
var ErrPlanNotFound = errors.New("plan not found")

// forbiddenKeys may never appear in a plan: secrets are injected at run time.
var forbiddenKeys = map[string]bool{
	"password": true,
	"passwd":   true,
	"pass":     true,
}

// LoadPlan loads a plan from a local path or any URL the storage layer
// understands (file://, mem://, s3://, gs://...).
func LoadPlan(ctx context.Context, location string) (*Plan, error) {
	if location == "" {
		location = constants.PlanFile
	}
	location = url.Normalize(expandHome(location), file.Scheme)

	fs := afs.New()
	exists, err := fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check plan %s: %w", location, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s (run 'provisioner init' first)", ErrPlanNotFound, location)
	}

	data, err := fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes YAML plan data, applies environment overrides and
// normalizes the target host.
func ParsePlan(data []byte) (*Plan, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if key := findForbiddenKey(&root); key != nil {
		return nil, ValidationErrors{{
			Field:   fmt.Sprintf("line %d", key.Line),
			Message: fmt.Sprintf("%q is not allowed in a plan; use target.credential (env, secret_url) or --password-stdin", key.Value),
		}}
	}

	var plan Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	ApplyEnvOverrides(&plan)
	if err := plan.normalizeHost(); err != nil {
		return nil, ValidationErrors{{Field: "target.host", Message: err.Error()}}
	}
	return &plan, nil
}

func findForbiddenKey(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if forbiddenKeys[strings.ToLower(n.Content[i].Value)] {
				return n.Content[i]
			}
		}
	}
	for _, child := range n.Content {
		if found := findForbiddenKey(child); found != nil {
			return found
		}
	}
	return nil
}

// SavePlan writes the plan to path.
func SavePlan(plan *Plan, path string) error {
	if path == "" {
		path = constants.PlanFile
	}

	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	return nil
}

// PlanExists checks if a local plan file exists
func PlanExists(path string) bool {
	if path == "" {
		path = constants.PlanFile
	}
	_, err := os.Stat(path)
	return err == nil
}

// ApplyEnvOverrides lets CI override the target without editing the plan.
func ApplyEnvOverrides(plan *Plan) {
	if host := os.Getenv(constants.EnvHost); host != "" {
		plan.Target.Host = host
	}
	if user := os.Getenv(constants.EnvUser); user != "" {
		plan.Target.User = user
	}
}

// normalizeHost splits a user@host:port host into its fields. Explicit
// user and port fields win over the ones embedded in the host.
func (p *Plan) normalizeHost() error {
	if p.Target.Host == "" {
		return nil
	}
	spec, err := ParseHostSpec(p.Target.Host)
	if err != nil {
		return err
	}
	p.Target.Host = spec.Host
	if p.Target.User == "" {
		p.Target.User = spec.User
	}
	if p.Target.Port == 0 {
		p.Target.Port = spec.Port
	}
	if p.Target.User == "" {
		p.Target.User = constants.DefaultUser
	}
	return nil
}

// SequencerSteps converts the configured steps, in order.
func (p *Plan) SequencerSteps() []sequencer.Step {
	steps := make([]sequencer.Step, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = sequencer.Step{
			Index:   i,
			Name:    s.Name,
			Command: s.Run,
			Timeout: s.Timeout,
		}
	}
	return steps
}

// TransportTarget builds the transport target with the resolved password.
func (p *Plan) TransportTarget(password string) transport.Target {
	return transport.Target{
		Host:                  p.Target.Host,
		User:                  p.Target.User,
		Port:                  p.Target.Port,
		Credential:            transport.Secret(password),
		KnownHosts:            expandHome(p.Target.KnownHosts),
		InsecureIgnoreHostKey: p.Target.InsecureIgnoreHostKey,
	}
}

// DefaultPlan returns the sample plan written by init: a Node.js host
// bootstrapped with pm2 and an application checkout.
func DefaultPlan() *Plan {
	return &Plan{
		Target: TargetConfig{
			Host: "203.0.113.10",
			User: constants.DefaultUser,
			Port: constants.DefaultSSHPort,
			Credential: CredentialConfig{
				Env: constants.EnvPassword,
			},
		},
		Defaults: Defaults{Timeout: constants.DefaultStepTimeout},
		Steps: []StepConfig{
			{Name: "update package index", Run: "apt-get update -y"},
			{Name: "add NodeSource repository", Run: "curl -fsSL https://deb.nodesource.com/setup_18.x | bash -"},
			{Name: "install Node.js", Run: "apt-get install -y nodejs"},
			{Name: "install pm2", Run: "npm install -g pm2"},
			{Name: "clone application", Run: "git clone https://github.com/Mo-420/DMA_Agent.git"},
			{Name: "install dependencies", Run: "cd DMA_Agent && npm install"},
			{Name: "create .env", Run: "cd DMA_Agent && cp env.example .env"},
			{Name: "done", Run: "echo '✓ Deployment complete!'"},
		},
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
