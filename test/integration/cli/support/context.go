package support

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ledgerscan/cmd/ledgerscan/cmd"
	"github.com/MeKo-Tech/ledgerscan/internal/server"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastArgs   []string
	LastOutput string
	LastStderr string
	LastError  error

	// Scenario workspace
	TempDir string
	env     map[string]*string

	// HTTP state
	HTTPServer         *httptest.Server
	LedgerServer       *server.Server
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a scenario workspace with an isolated config home.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "ledgerscan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	testCtx := &TestContext{TempDir: tempDir, env: map[string]*string{}}
	if err := testCtx.SetEnv("XDG_CONFIG_HOME", filepath.Join(tempDir, "xdg")); err != nil {
		return nil, err
	}
	return testCtx, nil
}

// SetEnv sets a process environment variable until Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) error {
	if _, seen := testCtx.env[name]; !seen {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.env[name] = &old
		} else {
			testCtx.env[name] = nil
		}
	}
	return os.Setenv(name, value)
}

// Path resolves a scenario-relative file name.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// expand replaces {tmp} with the scenario workspace.
func (testCtx *TestContext) expand(s string) string {
	return strings.ReplaceAll(s, "{tmp}", testCtx.TempDir)
}

// RunCLI executes the ledgerscan command tree in-process.
func (testCtx *TestContext) RunCLI(args []string) {
	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	testCtx.LastArgs = args
	testCtx.LastError = root.Execute()
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
}

// Cleanup stops servers, restores the environment and removes the workspace.
func (testCtx *TestContext) Cleanup() error {
	testCtx.stopServer()
	for name, old := range testCtx.env {
		if old == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *old)
		}
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}
