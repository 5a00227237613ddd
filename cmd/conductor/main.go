// Command conductor runs a single job synchronously and prints the live
// transcript to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/martinemde/conductor/commands"
	"github.com/martinemde/conductor/jobengine"
	"github.com/martinemde/conductor/modelstream"
	"github.com/martinemde/conductor/toolbox"
)

func main() {
	commandsDir := flag.String("commands", "commands", "directory of command templates")
	workdir := flag.String("workdir", ".", "working directory for the job")
	provider := flag.String("provider", "anthropic", "model provider")
	model := flag.String("model", "", "model identifier (provider default if empty)")
	maxTurns := flag.Int("max-turns", 0, "turn budget override")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: conductor [flags] <command> [prompt...]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	command := flag.Arg(0)
	prompt := strings.Join(flag.Args()[1:], " ")

	if err := run(command, prompt, *commandsDir, *workdir, *provider, *model, *maxTurns); err != nil {
		fmt.Fprintf(os.Stderr, "conductor: %v\n", err)
		os.Exit(1)
	}
}

func run(command, prompt, commandsDir, workdir, provider, model string, maxTurns int) error {
	var backendOpts []modelstream.GollmOption
	if model != "" {
		backendOpts = append(backendOpts, modelstream.WithModel(model))
	}
	backend, err := modelstream.NewGollmBackend(provider, backendOpts...)
	if err != nil {
		return err
	}

	library, err := commands.Load(commandsDir)
	if err != nil {
		return err
	}

	cfg := jobengine.DefaultConfig()
	cfg.Model = model
	if maxTurns > 0 {
		cfg.MaxTurns = maxTurns
	}

	registry := jobengine.NewRegistry(backend, library, toolbox.NewDispatcher(), &cfg)
	defer registry.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	id, err := registry.Submit(ctx, jobengine.SubmitRequest{
		Command:          command,
		Prompt:           prompt,
		WorkingDirectory: workdir,
	})
	if err != nil {
		return err
	}

	sub, err := registry.Attach(id)
	if err != nil {
		return err
	}
	defer sub.Close()

	go func() {
		<-ctx.Done()
		registry.Cancel(id)
	}()

	for ev := range sub.Events() {
		printEvent(ev)
	}

	snap, err := registry.Get(id)
	if err != nil {
		return err
	}
	fmt.Printf("  [done]  state=%s  events=%d  duration=%.1fs\n",
		snap.State, snap.EventCount, time.Since(start).Seconds())

	if snap.State != jobengine.StateCompleted {
		if snap.Error != "" {
			return fmt.Errorf("job %s: %s", snap.State, snap.Error)
		}
		return fmt.Errorf("job %s", snap.State)
	}
	return nil
}

func printEvent(ev jobengine.Event) {
	switch ev.Kind {
	case jobengine.EventAssistantText:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return
		}
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Printf("  [agent] %s\n", text)
	case jobengine.EventToolCallRequested:
		fmt.Printf("  [tool]  %s\n", ev.ToolName)
	case jobengine.EventToolError:
		fmt.Printf("  [tool]  %s failed: %s\n", ev.ToolName, ev.Error)
	case jobengine.EventJobFailed:
		fmt.Printf("  [error] %s: %s\n", ev.Reason, ev.Error)
	case jobengine.EventJobCancelled:
		fmt.Println("  [cancelled]")
	}
}
