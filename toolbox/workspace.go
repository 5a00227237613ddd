package toolbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/conductor/jobengine"
)

// Workspace scopes all filesystem and process operations to one job's
// working directory. Any path argument resolving outside the root is
// refused with a sandbox-violation error before the operation runs.
type Workspace struct {
	root string
	// realRoot is root with symlinks resolved; confinement checks against
	// it catch paths that escape through a symlink inside the workspace.
	realRoot string
}

// NewWorkspace creates a Workspace rooted at dir, which must exist.
func NewWorkspace(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace: %s is not a directory", abs)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{root: abs, realRoot: real}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// resolve maps a tool-supplied path onto the workspace and rejects any
// result outside the root. The check is applied twice: lexically on the
// cleaned path, then again after resolving symlinks, so a link inside the
// workspace cannot reach outside it.
func (w *Workspace) resolve(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(w.root, resolved)
	}
	resolved = filepath.Clean(resolved)
	if !within(w.root, resolved) {
		return "", fmt.Errorf("%w: path %q escapes working directory %s",
			jobengine.ErrSandboxViolation, path, w.root)
	}
	real, err := evalExisting(resolved)
	if err == nil && !within(w.realRoot, real) {
		return "", fmt.Errorf("%w: path %q resolves outside working directory %s",
			jobengine.ErrSandboxViolation, path, w.root)
	}
	return resolved, nil
}

// evalExisting resolves symlinks in the longest existing prefix of path
// and rejoins the non-existent remainder.
func evalExisting(path string) (string, error) {
	p := path
	remainder := ""
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(real, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(p), remainder)
		p = parent
	}
}

// ReadFile returns line-numbered content of a file, honoring a 1-based
// line offset and a line limit (0 = no limit).
func (w *Workspace) ReadFile(path string, offset, limit int) (string, error) {
	raw, err := w.ReadRaw(path)
	if err != nil {
		return "", err
	}

	lines := strings.Split(raw, "\n")

	startLine := 0
	if offset > 0 {
		startLine = offset - 1
	}
	if startLine >= len(lines) {
		return "", nil
	}

	endLine := len(lines)
	if limit > 0 && startLine+limit < endLine {
		endLine = startLine + limit
	}

	var sb strings.Builder
	for i := startLine; i < endLine; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// ReadRaw returns the exact file content without line numbering.
func (w *Workspace) ReadRaw(path string) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(data), nil
}

// WriteFile writes content to a file, creating parent directories inside
// the workspace as needed.
func (w *Workspace) WriteFile(path, content string) error {
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("write_file: failed to create directory: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return fmt.Errorf("write_file: %w", err)
	}
	return nil
}

// FileExists reports whether a path exists inside the workspace.
func (w *Workspace) FileExists(path string) bool {
	resolved, err := w.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(resolved)
	return err == nil
}

// ExecResult holds the result of a shell command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// sensitiveEnvSuffixes are case-insensitive suffixes for environment
// variables that are excluded from tool subprocesses.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := parts[0]
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// ExecCommand runs a shell command with the workspace root as its working
// directory. A positive timeoutMs bounds the execution; on timeout the
// process group is killed and TimedOut is set.
func (w *Workspace) ExecCommand(ctx context.Context, command string, timeoutMs int) (*ExecResult, error) {
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	shell := "/bin/bash"
	shellArg := "-c"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
		shellArg = "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = w.root

	// Process group for clean killability.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = filterEnvironment()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: duration.Milliseconds(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("shell: %w", err)
		}
	}

	return result, nil
}

// GrepOptions configures pattern search behavior.
type GrepOptions struct {
	GlobFilter      string `json:"glob_filter,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// Grep searches file contents under path (default: workspace root) using
// ripgrep when available, falling back to grep.
func (w *Workspace) Grep(ctx context.Context, pattern, path string, options GrepOptions) (string, error) {
	searchPath := w.root
	if path != "" {
		resolved, err := w.resolve(path)
		if err != nil {
			return "", err
		}
		searchPath = resolved
	}

	rgPath, err := exec.LookPath("rg")
	if err != nil {
		return w.grepFallback(ctx, pattern, searchPath, options)
	}

	args := []string{pattern, searchPath, "--line-number", "--no-heading"}
	if options.CaseInsensitive {
		args = append(args, "-i")
	}
	if options.GlobFilter != "" {
		args = append(args, "--glob", options.GlobFilter)
	}
	if options.MaxResults > 0 {
		args = append(args, "--max-count", fmt.Sprintf("%d", options.MaxResults))
	}

	cmd := exec.CommandContext(ctx, rgPath, args...)
	cmd.Dir = w.root
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run() // rg returns exit 1 for no matches, which is fine.
	return stdout.String(), nil
}

func (w *Workspace) grepFallback(ctx context.Context, pattern, path string, options GrepOptions) (string, error) {
	args := []string{"-rn", pattern, path}
	if options.CaseInsensitive {
		args = append([]string{"-i"}, args...)
	}

	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = w.root
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	return stdout.String(), nil
}

// Glob finds files matching a glob pattern under path (default: workspace
// root). Matches are returned relative to the workspace root.
func (w *Workspace) Glob(pattern, path string) ([]string, error) {
	base := w.root
	if path != "" {
		resolved, err := w.resolve(path)
		if err != nil {
			return nil, err
		}
		base = resolved
	}

	// The pattern itself can carry "..", so the joined result is confined
	// like any other path argument.
	full, err := w.resolve(filepath.Join(base, pattern))
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}

	result := make([]string, len(matches))
	for i, m := range matches {
		rel, err := filepath.Rel(w.root, m)
		if err != nil {
			result[i] = m
		} else {
			result[i] = rel
		}
	}
	return result, nil
}
