package cfgstore

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
)

// SubprocessTimeout bounds any single bulkloader/bulkdownloader invocation,
// local or remote.
const SubprocessTimeout = 300 * time.Second

// CLIConfig configures the CLI-tool transport variant.
type CLIConfig struct {
	SetupScript string
	DatabaseURI string
	RemoteHost  string // empty means run locally
}

// CLIStore drives the bulkloader/bulkdownloader CLI tools, either on the
// local host or, when RemoteHost is set, on a remote host reached over a
// tar-over-ssh pipe: the working directory is streamed to the remote host
// as a tar archive, the tool runs there, and results stream back.
type CLIStore struct {
	cfg     CLIConfig
	breaker *gobreaker.CircuitBreaker
	run     func(ctx context.Context, name string, args ...string) (string, error)
}

// NewCLIStore constructs a CLIStore. The circuit breaker trips after
// repeated subprocess failures within a single invocation, avoiding a slow
// march through every remaining run when the remote host or the tool
// itself is simply down.
func NewCLIStore(cfg CLIConfig) *CLIStore {
	s := &CLIStore{cfg: cfg}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cfgstore-cli",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	s.run = s.exec
	return s
}

func (s *CLIStore) exec(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, SubprocessTimeout)
	defer cancel()

	var cmdName string
	var cmdArgs []string
	if s.cfg.RemoteHost != "" {
		cmdName, cmdArgs = s.buildRemoteCommand(name, args)
	} else {
		cmdName, cmdArgs = s.buildLocalCommand(name, args)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdName, cmdArgs...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w (stderr: %s)", name, err, stderr.String())
	}
	return stdout.String(), nil
}

// buildLocalCommand wraps the tool invocation in a shell line exporting the
// setup script and database URI for a local run.
func (s *CLIStore) buildLocalCommand(tool string, args []string) (string, []string) {
	script := fmt.Sprintf("source %s && export ARTDAQ_DATABASE_URI=%q && %s %s",
		s.cfg.SetupScript, s.cfg.DatabaseURI, tool, shellJoin(args))
	return "/bin/sh", []string{"-c", script}
}

// buildRemoteCommand streams the invocation over ssh: a tar pipe carries
// any local working directory the caller bundled into args[0] to a
// transient remote directory, the tool runs there, and the shell script
// cleans up afterward.
func (s *CLIStore) buildRemoteCommand(tool string, args []string) (string, []string) {
	remoteScript := fmt.Sprintf(
		"mkdir -p /tmp/rrarchiver-$$ && cd /tmp/rrarchiver-$$ && tar xzf - && "+
			"source %s && export ARTDAQ_DATABASE_URI=%q && %s %s; rc=$?; cd / && rm -rf /tmp/rrarchiver-$$; exit $rc",
		s.cfg.SetupScript, s.cfg.DatabaseURI, tool, shellJoin(args))
	local := fmt.Sprintf("tar czf - -C %s . | ssh %s %q", ".", s.cfg.RemoteHost, remoteScript)
	return "/bin/sh", []string{"-c", local}
}

func shellJoin(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

func (s *CLIStore) invoke(ctx context.Context, tool string, args ...string) (string, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.run(ctx, tool, args...)
	})
	if err != nil {
		return "", errs.New(errs.KindConfigurationStore, "", nil, err, map[string]any{"tool": tool})
	}
	return out.(string), nil
}

func (s *CLIStore) ListRuns(ctx context.Context) ([]int, error) {
	out, err := s.invoke(ctx, "bulkloader", "--list")
	if err != nil {
		return nil, err
	}
	return parseRunListOutput(out), nil
}

func (s *CLIStore) ResolveConfigName(ctx context.Context, run int) (string, error) {
	out, err := s.invoke(ctx, "bulkloader", "--config-name", itoa(run))
	if err != nil {
		return "", err
	}
	return trimLeadingRunPrefix(run, out), nil
}

func (s *CLIStore) Insert(ctx context.Context, run int, configName string, dir string) error {
	_, err := s.invoke(ctx, "bulkloader", "--insert", itoa(run), configName, dir)
	return err
}

func (s *CLIStore) Update(ctx context.Context, run int, configName string, dir string) error {
	_, err := s.invoke(ctx, "bulkloader", "--update", itoa(run), configName, dir)
	return err
}

func (s *CLIStore) Export(ctx context.Context, run int, configName string, destDir string) error {
	_, err := s.invoke(ctx, "bulkdownloader", "--export", itoa(run), configName, destDir)
	return err
}

func parseRunListOutput(out string) []int {
	var runs []int
	for _, line := range splitLines(out) {
		if n, ok := parsePositiveInt(line); ok {
			runs = append(runs, n)
		}
	}
	return runs
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, trimSpace(s[start:i]))
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimSpace(s[start:]))
	}
	return lines
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// trimLeadingRunPrefix strips a leading "<run>/" prefix from a config-name
// string returned by the CLI tool — the CLI transport, unlike the driver
// transport, returns config names already namespaced by run.
func trimLeadingRunPrefix(run int, configName string) string {
	configName = trimSpace(configName)
	prefix := itoa(run) + "/"
	if len(configName) > len(prefix) && configName[:len(prefix)] == prefix {
		return configName[len(prefix):]
	}
	return configName
}
