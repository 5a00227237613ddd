package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/martinemde/conductor/jobengine"
)

// maxCommandBytes caps the size of a single command file.
const maxCommandBytes = 2 << 20 // 2 MiB

// Command is one loaded command template.
type Command struct {
	Name        string
	Description string
	// Instructions is the markdown body with frontmatter stripped.
	Instructions string
}

type frontmatter struct {
	Description string `yaml:"description"`
}

// Library holds the command set loaded from a directory. The set is fixed
// at load time; an unrecognized name is jobengine.ErrUnknownCommand.
type Library struct {
	commands map[string]Command
}

// Load reads every *.md file in dir as a command named after its base
// filename. A file with invalid frontmatter fails the whole load.
func Load(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading command directory: %w", err)
	}

	lib := &Library{commands: make(map[string]Command)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		cmd, err := loadFile(filepath.Join(dir, entry.Name()), name)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		lib.commands[name] = cmd
	}
	return lib, nil
}

func loadFile(path, name string) (Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return Command{}, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, maxCommandBytes+1))
	if err != nil {
		return Command{}, err
	}
	if len(b) > maxCommandBytes {
		return Command{}, fmt.Errorf("command file exceeds %d bytes", maxCommandBytes)
	}

	fm, body, hasFM, err := splitFrontmatter(string(b))
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Name: name, Instructions: strings.TrimSpace(body)}
	if hasFM {
		var meta frontmatter
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return Command{}, fmt.Errorf("invalid frontmatter YAML: %w", err)
		}
		cmd.Description = strings.TrimSpace(meta.Description)
	}
	if cmd.Instructions == "" {
		return Command{}, errors.New("empty command body")
	}
	return cmd, nil
}

// splitFrontmatter separates a leading YAML frontmatter block (delimited by
// "---" lines) from the markdown body.
func splitFrontmatter(s string) (fm, body string, has bool, err error) {
	br := bufio.NewReader(strings.NewReader(s))

	first, ferr := br.ReadString('\n')
	if ferr != nil && !errors.Is(ferr, io.EOF) {
		return "", "", false, ferr
	}
	if strings.TrimSpace(strings.TrimRight(first, "\r\n")) != "---" {
		return "", s, false, nil
	}

	var fmLines []string
	foundEnd := false
	for {
		line, lerr := br.ReadString('\n')
		if lerr != nil && !errors.Is(lerr, io.EOF) {
			return "", "", false, lerr
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(trimmed) == "---" {
			foundEnd = true
			break
		}
		fmLines = append(fmLines, trimmed)
		if errors.Is(lerr, io.EOF) {
			break
		}
	}
	if !foundEnd {
		return "", "", false, errors.New("unterminated frontmatter (missing closing ---)")
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return "", "", false, err
	}
	return strings.Join(fmLines, "\n"), string(rest), true, nil
}

// CommandInstructions returns the instruction text for name. Unknown names
// fail with jobengine.ErrUnknownCommand.
func (l *Library) CommandInstructions(name string) (string, error) {
	cmd, ok := l.commands[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", jobengine.ErrUnknownCommand, name)
	}
	return cmd.Instructions, nil
}

// Get returns the full command record for name.
func (l *Library) Get(name string) (Command, error) {
	cmd, ok := l.commands[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", jobengine.ErrUnknownCommand, name)
	}
	return cmd, nil
}

// List returns all loaded commands sorted by name.
func (l *Library) List() []Command {
	out := make([]Command, 0, len(l.commands))
	for _, cmd := range l.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
