package commands

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/conductor/jobengine"
)

func writeCommand(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadParsesFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "review.md", `---
description: Review code for correctness.
---
You are a careful reviewer.

Look at: $ARGUMENTS
`)

	lib, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cmd, err := lib.Get("review")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cmd.Description != "Review code for correctness." {
		t.Errorf("description = %q", cmd.Description)
	}
	if strings.Contains(cmd.Instructions, "---") || strings.Contains(cmd.Instructions, "description:") {
		t.Errorf("frontmatter leaked into instructions: %q", cmd.Instructions)
	}
	if !strings.HasPrefix(cmd.Instructions, "You are a careful reviewer.") {
		t.Errorf("instructions = %q", cmd.Instructions)
	}
}

func TestLoadWithoutFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "plain.md", "Just do the thing.\n")

	lib, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	text, err := lib.CommandInstructions("plain")
	if err != nil {
		t.Fatalf("instructions: %v", err)
	}
	if text != "Just do the thing." {
		t.Errorf("instructions = %q", text)
	}
}

func TestLoadSkipsNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "cmd.md", "body\n")
	writeCommand(t, dir, "notes.txt", "not a command\n")
	if err := os.Mkdir(filepath.Join(dir, "sub.md"), 0755); err != nil {
		t.Fatal(err)
	}

	lib, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(lib.List()); got != 1 {
		t.Errorf("expected 1 command, got %d", got)
	}
}

func TestLoadRejectsUnterminatedFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "broken.md", "---\ndescription: no closing fence\n")

	if _, err := Load(dir); err == nil {
		t.Error("expected error for unterminated frontmatter")
	}
}

func TestLoadRejectsEmptyBody(t *testing.T) {
	dir := t.TempDir()
	writeCommand(t, dir, "empty.md", "---\ndescription: only metadata\n---\n")

	if _, err := Load(dir); err == nil {
		t.Error("expected error for empty command body")
	}
}

func TestUnknownCommand(t *testing.T) {
	lib, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err = lib.CommandInstructions("missing")
	if !errors.Is(err, jobengine.ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if _, err := lib.Get("missing"); !errors.Is(err, jobengine.ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand from Get, got %v", err)
	}
}

func TestListSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.md", "alpha.md", "mid.md"} {
		writeCommand(t, dir, name, "body\n")
	}

	lib, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	list := lib.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(list))
	}
	if list[0].Name != "alpha" || list[1].Name != "mid" || list[2].Name != "zeta" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].Name, list[1].Name, list[2].Name)
	}
}
