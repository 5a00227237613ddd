package jobengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/martinemde/conductor/modelstream"
)

// engine drives one job from Queued to a terminal state by alternating
// model turns and sequential tool dispatch. Exactly one engine exists per
// job, and it has exclusive write access to the job's log.
type engine struct {
	job      *job
	backend  modelstream.Backend
	commands InstructionSource
	tools    ToolDispatcher
	config   Config
}

func (e *engine) run(parent context.Context) {
	j := e.job

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	j.mu.Lock()
	j.cancel = cancel
	alreadyCancelled := j.cancelRequested
	j.mu.Unlock()

	j.setRunning()
	if alreadyCancelled {
		j.finish(StateCancelled, "", "")
		return
	}

	deadline := j.createdAt.Add(e.config.WallClock)

	instructions, err := e.commands.CommandInstructions(j.command)
	if err != nil {
		j.finish(StateFailed, ReasonUnknownCommand, err.Error())
		return
	}

	// Command templates may embed the job prompt via $ARGUMENTS; the
	// prompt is still sent as the opening user message either way.
	instructions = strings.ReplaceAll(instructions, "$ARGUMENTS", j.prompt)

	history := []modelstream.Message{
		modelstream.SystemMessage(instructions),
		modelstream.UserMessage(j.prompt),
	}
	toolDefs := e.tools.Definitions()

	// Tool-call signatures accumulated across turns for loop detection.
	var signatures []string

	for turn := 1; ; turn++ {
		if e.checkpoint(deadline) {
			return
		}
		if turn > e.config.MaxTurns {
			j.finish(StateFailed, ReasonBudgetExceeded,
				fmt.Sprintf("turn budget of %d exceeded", e.config.MaxTurns))
			return
		}

		stream, err := e.backend.Converse(ctx, modelstream.ConverseRequest{
			Model:    e.config.Model,
			Messages: history,
			Tools:    toolDefs,
		})
		if err != nil {
			if j.cancelled() {
				j.finish(StateCancelled, "", "")
				return
			}
			j.finish(StateFailed, ReasonBackendFailure, err.Error())
			return
		}

		var text strings.Builder
		var toolCalls []modelstream.ToolCall
		var backendErr error

		for ev := range stream {
			if j.cancelled() {
				// Drain and discard; the checkpoint below turns the flag
				// into a terminal state.
				continue
			}
			switch ev.Type {
			case modelstream.TurnText:
				if ev.Text == "" {
					continue
				}
				text.WriteString(ev.Text)
				j.log.Append(Event{Kind: EventAssistantText, Text: ev.Text})
			case modelstream.TurnToolCall:
				if ev.ToolCall != nil {
					toolCalls = append(toolCalls, *ev.ToolCall)
				}
			case modelstream.TurnError:
				backendErr = ev.Err
			case modelstream.TurnDone:
			}
		}

		// Cancellation wins over anything else observed during the turn.
		if j.cancelled() {
			j.finish(StateCancelled, "", "")
			return
		}
		if backendErr != nil {
			j.finish(StateFailed, ReasonBackendFailure, backendErr.Error())
			return
		}

		assistant := modelstream.AssistantMessage(text.String())
		for _, tc := range toolCalls {
			assistant.Content = append(assistant.Content,
				modelstream.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
		}
		history = append(history, assistant)

		// A turn with no tool calls is the model's completion signal.
		if len(toolCalls) == 0 {
			j.finish(StateCompleted, "", "")
			return
		}

		// Dispatch strictly one at a time, in model order: tools may mutate
		// the same working directory, and ordering must be reproducible.
		for _, tc := range toolCalls {
			if e.checkpoint(deadline) {
				return
			}

			j.log.Append(Event{
				Kind:      EventToolCallRequested,
				ToolName:  tc.Name,
				CallID:    tc.ID,
				Arguments: tc.Arguments,
			})
			signatures = append(signatures, toolCallSignature(tc.Name, tc.Arguments))

			// A dispatched tool always runs to completion; killing it
			// mid-execution could leave the working directory in an
			// undefined state. Cancellation is honored at the next
			// checkpoint instead.
			output, err := e.tools.Execute(context.WithoutCancel(ctx), tc.Name, tc.Arguments, j.workingDirectory)
			if err != nil {
				j.log.Append(Event{
					Kind:     EventToolError,
					ToolName: tc.Name,
					CallID:   tc.ID,
					Error:    err.Error(),
				})
				switch {
				case errors.Is(err, ErrUnknownTool):
					j.finish(StateFailed, ReasonUnknownTool, err.Error())
					return
				case errors.Is(err, ErrSandboxViolation):
					j.finish(StateFailed, ReasonSandboxViolation, err.Error())
					return
				}
				// Operational tool failures are not fatal: the model sees
				// the error and may retry or adapt within the turn budget.
				history = append(history, modelstream.ToolResultMessage(tc.ID, err.Error(), true))
				continue
			}

			j.log.Append(Event{
				Kind:     EventToolResult,
				ToolName: tc.Name,
				CallID:   tc.ID,
				Output:   output,
			})
			truncated := TruncateToolOutput(output, tc.Name, e.config.ToolOutputLimits, e.config.ToolLineLimits)
			history = append(history, modelstream.ToolResultMessage(tc.ID, truncated, false))
		}

		if e.config.LoopDetectionWindow > 0 && detectLoop(signatures, e.config.LoopDetectionWindow) {
			notice := fmt.Sprintf(
				"The last %d tool calls follow a repeating pattern. Try a different approach.",
				e.config.LoopDetectionWindow)
			history = append(history, modelstream.UserMessage(notice))
		}
	}
}

// checkpoint enforces cancellation and the wall-clock budget. It returns
// true when the job has been driven to a terminal state and the loop must
// stop. Cancellation is checked first so it wins a race with the budget.
func (e *engine) checkpoint(deadline time.Time) bool {
	j := e.job
	if j.cancelled() {
		j.finish(StateCancelled, "", "")
		return true
	}
	if time.Now().After(deadline) {
		j.finish(StateFailed, ReasonBudgetExceeded,
			fmt.Sprintf("wall-clock budget of %s exceeded", e.config.WallClock))
		return true
	}
	return false
}
