package constants

import "time"

// Plan file defaults
const (
	PlanFile = "provision.yaml"
)

// Connection defaults
const (
	DefaultSSHPort     = 22
	DefaultUser        = "root"
	DefaultDialTimeout = 30 * time.Second
)

// Step execution defaults
const (
	DefaultStepTimeout = 5 * time.Minute
	// ShutdownGrace bounds how long a terminated session may take to exit.
	ShutdownGrace = 5 * time.Second
)

// Environment variables read at startup
const (
	EnvPassword         = "PROVISIONER_PASSWORD"
	EnvHost             = "PROVISIONER_HOST"
	EnvUser             = "PROVISIONER_USER"
	EnvKnownHosts       = "PROVISIONER_KNOWN_HOSTS"
	EnvSkipHostKeyCheck = "PROVISIONER_SKIP_HOST_KEY_CHECK"
	EnvPlan             = "PROVISIONER_PLAN"
)

// Mask replaces secret values in anything printed or logged.
const Mask = "****"
