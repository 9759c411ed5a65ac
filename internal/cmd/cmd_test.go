package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/provisioner/internal/config"
	"github.com/yoanbernabeu/provisioner/internal/constants"
	"github.com/yoanbernabeu/provisioner/internal/security"
	"github.com/yoanbernabeu/provisioner/internal/sequencer"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// withFlags resets the package flags after the test and detaches the
// terminal so nothing prompts.
func withFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		cfgFile, logFormat, logFile, traceFile string
		initHost                               string
		verbose, force, passwordStdin          bool
		timeout                                time.Duration
		isTerminal                             func() bool
	}{cfgFile, logFormat, logFile, traceFile, initHost, verbose, initForce, runPasswordStdin, runTimeout, stdinIsTerminal}
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() {
		cfgFile, logFormat, logFile, traceFile = saved.cfgFile, saved.logFormat, saved.logFile, saved.traceFile
		verbose, initForce, runPasswordStdin = saved.verbose, saved.force, saved.passwordStdin
		initHost, runTimeout, stdinIsTerminal = saved.initHost, saved.timeout, saved.isTerminal
	})
}

func testCommand() *cobra.Command {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	c.SetIn(strings.NewReader(""))
	c.SetOut(&bytes.Buffer{})
	return c
}

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provision.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "invalid config", err: withExitCode(ExitInvalidConfig, errors.New("bad")), want: ExitInvalidConfig},
		{
			name: "wrapped",
			err:  fmt.Errorf("context: %w", withExitCode(ExitTransportUnavailable, transport.ErrTransportUnavailable)),
			want: ExitTransportUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}

	if withExitCode(ExitFailure, nil) != nil {
		t.Error("withExitCode(nil) should be nil")
	}
}

func TestOutcomeError(t *testing.T) {
	if err := outcomeError(&sequencer.RunOutcome{Success: true}); err != nil {
		t.Fatalf("outcomeError(success) = %v", err)
	}

	outcome := &sequencer.RunOutcome{
		Results: []sequencer.StepResult{
			{Step: sequencer.Step{Index: 0, Command: "true"}, Result: &transport.Result{}},
			{Step: sequencer.Step{Index: 1, Command: "false"}, Result: &transport.Result{ExitCode: 1}},
		},
		State: sequencer.StateFailed,
	}
	err := outcomeError(outcome)
	if ExitCode(err) != ExitFailure {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitFailure)
	}
	if !errors.Is(err, sequencer.ErrRemoteCommandFailed) {
		t.Errorf("error %v should wrap ErrRemoteCommandFailed", err)
	}
	if !strings.Contains(err.Error(), "step 2 failed") {
		t.Errorf("error = %q, want failing step number", err.Error())
	}

	var exitErr *exitError
	if !errors.As(err, &exitErr) || !exitErr.reported {
		t.Error("step failures are already printed by the console and must be marked reported")
	}
}

func TestStepTimeout(t *testing.T) {
	withFlags(t)

	tests := []struct {
		name     string
		flag     time.Duration
		defaults time.Duration
		want     time.Duration
	}{
		{name: "built-in default", want: constants.DefaultStepTimeout},
		{name: "plan default", defaults: 10 * time.Minute, want: 10 * time.Minute},
		{name: "flag wins", flag: time.Minute, defaults: 10 * time.Minute, want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runTimeout = tt.flag
			plan := &config.Plan{Defaults: config.Defaults{Timeout: tt.defaults}}
			if got := stepTimeout(plan); got != tt.want {
				t.Errorf("stepTimeout() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPrintPlan(t *testing.T) {
	plan := &config.Plan{
		Target: config.TargetConfig{Host: "203.0.113.10", User: "root", Port: 2222},
		Steps: []config.StepConfig{
			{Run: "apt-get update -y"},
			{Name: "migrate", Run: "DB_PASSWORD=hunter2 ./migrate", Timeout: time.Minute},
			{Run: "echo s3cr3t | chpasswd"},
		},
	}

	var buf bytes.Buffer
	printPlan(&buf, plan, security.NewRedactor("s3cr3t"))
	out := buf.String()

	for _, want := range []string{
		"root@203.0.113.10:2222",
		"$PROVISIONER_PASSWORD",
		"Steps:       3",
		"1. apt-get update -y (timeout 5m0s)",
		"2. migrate (timeout 1m0s)",
		"DB_PASSWORD=**** ./migrate",
		"3. echo **** | chpasswd",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("printPlan() missing %q\ngot:\n%s", want, out)
		}
	}
	for _, secret := range []string{"hunter2", "s3cr3t"} {
		if strings.Contains(out, secret) {
			t.Errorf("printPlan() leaked %q", secret)
		}
	}
}

func TestPrintPlan_Empty(t *testing.T) {
	var buf bytes.Buffer
	printPlan(&buf, &config.Plan{Target: config.TargetConfig{Host: "web", User: "root"}}, nil)
	if !strings.Contains(buf.String(), "No steps to run.") {
		t.Errorf("printPlan() = %q", buf.String())
	}
}

func TestCredentialSource(t *testing.T) {
	tests := []struct {
		cfg  config.CredentialConfig
		want string
	}{
		{cfg: config.CredentialConfig{}, want: "$PROVISIONER_PASSWORD"},
		{cfg: config.CredentialConfig{Env: "PROD_PASSWORD"}, want: "$PROD_PASSWORD"},
		{cfg: config.CredentialConfig{Env: "X", SecretURL: "~/.secret/prod.json"}, want: "secret ~/.secret/prod.json"},
	}
	for _, tt := range tests {
		if got := credentialSource(tt.cfg); got != tt.want {
			t.Errorf("credentialSource(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestPrintProbes(t *testing.T) {
	var buf bytes.Buffer
	ok := printProbes(&buf, []transport.ProbeResult{
		{Strategy: "direct", Capability: transport.Unavailable},
		{Strategy: "interactive", Capability: transport.Available},
	})
	if !ok {
		t.Fatal("printProbes() = false, want true")
	}
	if !strings.Contains(buf.String(), "Steps will run via interactive.") {
		t.Errorf("printProbes() = %q", buf.String())
	}

	buf.Reset()
	ok = printProbes(&buf, []transport.ProbeResult{
		{Strategy: "direct", Capability: transport.Unavailable},
		{Strategy: "interactive", Capability: transport.Unavailable},
	})
	if ok {
		t.Fatal("printProbes() = true, want false")
	}
	if !strings.Contains(buf.String(), "No strategy available") {
		t.Errorf("printProbes() = %q", buf.String())
	}
}

func TestSamplePlan(t *testing.T) {
	plan, err := samplePlan("")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Target.Host != config.DefaultPlan().Target.Host {
		t.Errorf("samplePlan(\"\") host = %q", plan.Target.Host)
	}

	plan, err = samplePlan("deploy@198.51.100.7:2200")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Target.Host != "198.51.100.7" || plan.Target.User != "deploy" || plan.Target.Port != 2200 {
		t.Errorf("samplePlan() target = %+v", plan.Target)
	}

	if _, err := samplePlan("web:99999"); err == nil {
		t.Error("samplePlan() with invalid port should fail")
	}
}

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		if got := PromptConfirm("Overwrite?", strings.NewReader(tt.input)); got != tt.want {
			t.Errorf("PromptConfirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLoadValidPlan(t *testing.T) {
	withFlags(t)
	t.Setenv(constants.EnvHost, "")
	t.Setenv(constants.EnvUser, "")
	ctx := context.Background()

	cfgFile = writePlan(t, "target:\n  host: root@web\nsteps:\n  - run: uptime\n")
	plan, err := LoadValidPlan(ctx)
	if err != nil {
		t.Fatalf("LoadValidPlan() error = %v", err)
	}
	if len(plan.Steps) != 1 {
		t.Errorf("LoadValidPlan() steps = %d, want 1", len(plan.Steps))
	}

	cfgFile = writePlan(t, "target:\n  host: web\nsteps:\n  - run: ''\n")
	_, err = LoadValidPlan(ctx)
	if ExitCode(err) != ExitInvalidConfig {
		t.Errorf("invalid plan: ExitCode() = %d, want %d (%v)", ExitCode(err), ExitInvalidConfig, err)
	}

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = LoadValidPlan(ctx)
	if !errors.Is(err, config.ErrPlanNotFound) || ExitCode(err) != ExitInvalidConfig {
		t.Errorf("missing plan: error = %v, code %d", err, ExitCode(err))
	}
}

func TestGetConfigFile(t *testing.T) {
	withFlags(t)

	cfgFile = ""
	t.Setenv(constants.EnvPlan, "s3://bucket/provision.yaml")
	if got := GetConfigFile(); got != "s3://bucket/provision.yaml" {
		t.Errorf("GetConfigFile() = %q", got)
	}

	cfgFile = "local.yaml"
	if got := GetConfigFile(); got != "local.yaml" {
		t.Errorf("GetConfigFile() = %q, want flag value", got)
	}
}

func TestRunInit(t *testing.T) {
	withFlags(t)
	t.Setenv(constants.EnvHost, "")
	t.Setenv(constants.EnvUser, "")

	cfgFile = filepath.Join(t.TempDir(), "provision.yaml")
	initForce = false
	initHost = ""

	if err := runInit(testCommand(), nil); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}
	if !config.PlanExists(cfgFile) {
		t.Fatal("runInit() did not write the plan")
	}

	if err := runInit(testCommand(), nil); err == nil {
		t.Error("runInit() should refuse to overwrite without --force")
	}

	initForce = true
	if err := runInit(testCommand(), nil); err != nil {
		t.Errorf("runInit() with --force error = %v", err)
	}

	plan, err := config.LoadPlan(context.Background(), cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	if errors := config.ValidatePlan(plan); errors.HasErrors() {
		t.Errorf("written plan is invalid: %v", errors)
	}
}

func TestRunRun_NoCredential(t *testing.T) {
	withFlags(t)
	t.Setenv(constants.EnvHost, "")
	t.Setenv(constants.EnvUser, "")
	t.Setenv(constants.EnvPassword, "")

	cfgFile = writePlan(t, "target:\n  host: root@web\nsteps:\n  - run: uptime\n")
	runPasswordStdin = false

	err := runRun(testCommand(), nil)
	if !errors.Is(err, config.ErrNoCredential) {
		t.Fatalf("runRun() error = %v, want ErrNoCredential", err)
	}
	if ExitCode(err) != ExitInvalidConfig {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitInvalidConfig)
	}
}

func TestRunRun_InvalidLogFormat(t *testing.T) {
	withFlags(t)
	t.Setenv(constants.EnvHost, "")
	t.Setenv(constants.EnvUser, "")
	t.Setenv(constants.EnvPassword, "hunter2")

	cfgFile = writePlan(t, "target:\n  host: root@web\nsteps:\n  - run: uptime\n")
	logFormat = "xml"

	err := runRun(testCommand(), nil)
	if ExitCode(err) != ExitInvalidConfig {
		t.Errorf("ExitCode() = %d, want %d (%v)", ExitCode(err), ExitInvalidConfig, err)
	}
	if err != nil && strings.Contains(err.Error(), "hunter2") {
		t.Error("error leaked the password")
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"run": false, "plan": false, "doctor": false, "init": false}
	for _, c := range GetRootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, flag := range []string{"config", "verbose", "log-format", "log-file", "trace-file"} {
		if GetRootCmd().PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}
