// Package toolbox implements the tool dispatcher consumed by the job
// engine: a closed set of side-effecting tools (shell execution, file
// read/write/edit, pattern search, file globbing, URL fetch) executed
// against a sandboxed workspace rooted at the job's working directory.
//
// Tool names outside the registered set and path arguments escaping the
// workspace root surface as distinguishable failures (jobengine's
// ErrUnknownTool and ErrSandboxViolation); everything else is an ordinary
// operational error the engine feeds back to the model.
package toolbox
