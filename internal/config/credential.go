package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/viant/scy"
	"github.com/viant/scy/cred"
	_ "github.com/viant/scy/kms/blowfish"

	"github.com/yoanbernabeu/provisioner/internal/constants"
)

// ErrNoCredential is returned when no source produced a password.
var ErrNoCredential = errors.New("no credential available")

// SecretLoader loads an encrypted secret. *scy.Service implements it.
type SecretLoader interface {
	Load(ctx context.Context, resource *scy.Resource) (*scy.Secret, error)
}

// CredentialSources are the run-time inputs ResolveCredential may consult.
type CredentialSources struct {
	Secrets SecretLoader
	Getenv  func(string) string
	// Stdin is read when UseStdin is set (--password-stdin)
	Stdin    io.Reader
	UseStdin bool
	// Prompt asks the user interactively; nil when no terminal is attached
	Prompt func(prompt string) (string, error)
}

// Credential is a resolved password and where it came from.
type Credential struct {
	Password string
	// Username is set when the secret store carries one
	Username string
	Source   string
}

// Credential sources, in resolution order.
const (
	SourceSecretStore = "secret-store"
	SourceEnv         = "env"
	SourceStdin       = "stdin"
	SourcePrompt      = "prompt"
)

// ResolveCredential finds the target password. Order: secret store, then
// environment variable, then stdin, then an interactive prompt.
func ResolveCredential(ctx context.Context, cfg CredentialConfig, src CredentialSources) (*Credential, error) {
	if cfg.SecretURL != "" {
		return loadSecret(ctx, cfg, src.Secrets)
	}

	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	envName := cfg.Env
	if envName == "" {
		envName = constants.EnvPassword
	}
	if pw := getenv(envName); pw != "" {
		return &Credential{Password: pw, Source: SourceEnv}, nil
	}

	if src.UseStdin {
		pw, err := readPasswordLine(src.Stdin)
		if err != nil {
			return nil, err
		}
		return &Credential{Password: pw, Source: SourceStdin}, nil
	}

	if src.Prompt != nil {
		pw, err := src.Prompt("Password: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		if pw == "" {
			return nil, fmt.Errorf("%w: empty password", ErrNoCredential)
		}
		return &Credential{Password: pw, Source: SourcePrompt}, nil
	}

	return nil, fmt.Errorf("%w: set %s, configure target.credential.secret_url, or use --password-stdin", ErrNoCredential, envName)
}

func loadSecret(ctx context.Context, cfg CredentialConfig, loader SecretLoader) (*Credential, error) {
	if loader == nil {
		loader = scy.New()
	}
	targetType, err := cred.TargetType("basic")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secret type: %w", err)
	}

	resource := scy.NewResource(targetType, expandHome(cfg.SecretURL), cfg.SecretKey)
	secret, err := loader.Load(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("failed to load secret from %s: %w", cfg.SecretURL, err)
	}

	var basic *cred.Basic
	switch actual := secret.Target.(type) {
	case *cred.Basic:
		basic = actual
	case cred.Basic:
		basic = &actual
	}
	if basic != nil && basic.Password != "" {
		return &Credential{Password: basic.Password, Username: basic.Username, Source: SourceSecretStore}, nil
	}

	if pw := strings.TrimSpace(secret.String()); secret.IsPlain && pw != "" {
		return &Credential{Password: pw, Source: SourceSecretStore}, nil
	}
	return nil, fmt.Errorf("%w: secret at %s has no password", ErrNoCredential, cfg.SecretURL)
}

// readPasswordLine reads the first line of r, without its line ending.
func readPasswordLine(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: stdin not available", ErrNoCredential)
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("%w: empty password on stdin", ErrNoCredential)
	}
	return line, nil
}
