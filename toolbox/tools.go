package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/martinemde/conductor/jobengine"
	"github.com/martinemde/conductor/modelstream"
)

func readFileTool() Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "read_file",
			Description: "Read a file from the working directory. Returns line-numbered content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file, relative to the working directory.",
					},
					"offset": map[string]interface{}{
						"type":        "integer",
						"description": "1-based line number to start reading from.",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of lines to read. Default: 2000.",
					},
				},
				"required": []string{"file_path"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			filePath, ok := stringArg(args, "file_path")
			if !ok || filePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			offset, _ := intArg(args, "offset")
			limit, _ := intArg(args, "limit")
			if limit == 0 {
				limit = 2000
			}
			return ws.ReadFile(filePath, offset, limit)
		},
	}
}

func writeFileTool() Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a file in the working directory. Creates the file and parent directories if needed.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to write to, relative to the working directory.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The full file content to write.",
					},
				},
				"required": []string{"file_path", "content"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			filePath, ok := stringArg(args, "file_path")
			if !ok || filePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			content, ok := stringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := ws.WriteFile(filePath, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), filePath), nil
		},
	}
}

func editFileTool() Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "edit_file",
			Description: "Replace an exact string occurrence in a file. The old_string must be unique in the file unless replace_all is true.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file to edit, relative to the working directory.",
					},
					"old_string": map[string]interface{}{
						"type":        "string",
						"description": "Exact text to find in the file.",
					},
					"new_string": map[string]interface{}{
						"type":        "string",
						"description": "Replacement text.",
					},
					"replace_all": map[string]interface{}{
						"type":        "boolean",
						"description": "Replace all occurrences. Default: false.",
					},
				},
				"required": []string{"file_path", "old_string", "new_string"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			filePath, ok := stringArg(args, "file_path")
			if !ok || filePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			oldString, ok := stringArg(args, "old_string")
			if !ok {
				return "", fmt.Errorf("old_string is required")
			}
			newString, _ := stringArg(args, "new_string")
			replaceAll, _ := boolArg(args, "replace_all")

			content, err := ws.ReadRaw(filePath)
			if err != nil {
				// Keep the sandbox sentinel and real read failures intact;
				// only a genuinely absent file gets the friendlier message.
				if errors.Is(err, jobengine.ErrSandboxViolation) || ws.FileExists(filePath) {
					return "", err
				}
				return "", fmt.Errorf("file not found: %s", filePath)
			}

			count := strings.Count(content, oldString)
			if count == 0 {
				return "", fmt.Errorf("old_string not found in %s", filePath)
			}
			if count > 1 && !replaceAll {
				return "", fmt.Errorf("old_string found %d times in %s. Provide more context to make it unique, or set replace_all=true", count, filePath)
			}

			var newContent string
			if replaceAll {
				newContent = strings.ReplaceAll(content, oldString, newString)
			} else {
				newContent = strings.Replace(content, oldString, newString, 1)
			}

			if err := ws.WriteFile(filePath, newContent); err != nil {
				return "", err
			}

			replacements := 1
			if replaceAll {
				replacements = count
			}
			return fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", replacements, filePath), nil
		},
	}
}

func shellTool(defaultTimeoutMs, maxTimeoutMs int) Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "shell",
			Description: "Execute a shell command in the working directory. Returns stdout, stderr, and exit code.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The command to run.",
					},
					"timeout_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Override the default command timeout in milliseconds.",
					},
					"description": map[string]interface{}{
						"type":        "string",
						"description": "Human-readable description of what this command does.",
					},
				},
				"required": []string{"command"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			command, ok := stringArg(args, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeoutMs, _ := intArg(args, "timeout_ms")
			if timeoutMs <= 0 {
				timeoutMs = defaultTimeoutMs
			}
			if timeoutMs > maxTimeoutMs {
				timeoutMs = maxTimeoutMs
			}

			result, err := ws.ExecCommand(ctx, command, timeoutMs)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())

			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %dms. Partial output is shown above.\n"+
					"You can retry with a longer timeout by setting the timeout_ms parameter.]", timeoutMs)
			}

			if result.ExitCode != 0 && !result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}

			return sb.String(), nil
		},
	}
}

func grepTool() Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "grep",
			Description: "Search file contents using regex patterns. Returns matching lines with file paths and line numbers.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regex pattern to search for.",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory or file to search. Default: working directory.",
					},
					"glob_filter": map[string]interface{}{
						"type":        "string",
						"description": "File pattern filter (e.g., \"*.go\").",
					},
					"case_insensitive": map[string]interface{}{
						"type":        "boolean",
						"description": "Case insensitive search. Default: false.",
					},
					"max_results": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of results. Default: 100.",
					},
				},
				"required": []string{"pattern"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			pattern, ok := stringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := stringArg(args, "path")
			globFilter, _ := stringArg(args, "glob_filter")
			caseInsensitive, _ := boolArg(args, "case_insensitive")
			maxResults, _ := intArg(args, "max_results")
			if maxResults <= 0 {
				maxResults = 100
			}

			return ws.Grep(ctx, pattern, path, GrepOptions{
				GlobFilter:      globFilter,
				CaseInsensitive: caseInsensitive,
				MaxResults:      maxResults,
			})
		},
	}
}

func globTool() Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "glob",
			Description: "Find files matching a glob pattern. Returns matching paths relative to the working directory.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Glob pattern (e.g., \"*.go\" or \"cmd/*/main.go\").",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory to search in. Default: working directory.",
					},
				},
				"required": []string{"pattern"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			pattern, ok := stringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := stringArg(args, "path")

			matches, err := ws.Glob(pattern, path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}
