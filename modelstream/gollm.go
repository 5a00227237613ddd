package modelstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmBackend wraps a gollm.LLM instance and implements Backend.
// It translates between the conductor conversation types and gollm's API.
type GollmBackend struct {
	provider string
	llm      gollm.LLM
	model    string
	retry    RetryPolicy
}

// GollmOption configures a GollmBackend.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	retry       RetryPolicy
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the backend. If empty, gollm reads it
// from environment variables.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the backend.
func WithModel(model string) GollmOption {
	return func(c *gollmConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) {
		c.temperature = t
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) GollmOption {
	return func(c *gollmConfig) {
		c.retry = p
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmBackend creates a GollmBackend for the given provider.
func NewGollmBackend(provider string, opts ...GollmOption) (*GollmBackend, error) {
	cfg := &gollmConfig{
		maxTokens:   8192,
		temperature: 0.7,
		retry:       DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by RetryPolicy
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmBackend{
		provider: provider,
		llm:      llm,
		model:    model,
		retry:    cfg.retry,
	}, nil
}

// NewGollmBackendFromLLM wraps an existing gollm.LLM instance.
func NewGollmBackendFromLLM(provider string, llm gollm.LLM) *GollmBackend {
	return &GollmBackend{
		provider: provider,
		llm:      llm,
		retry:    DefaultRetryPolicy(),
	}
}

// Provider returns the provider identifier.
func (b *GollmBackend) Provider() string {
	return b.provider
}

// Converse sends the conversation and returns a channel of turn events.
// When the underlying provider supports token streaming, text chunks are
// emitted as they arrive; otherwise the full text is emitted as one chunk.
// Tool calls are always emitted after the text, followed by TurnDone.
func (b *GollmBackend) Converse(ctx context.Context, req ConverseRequest) (<-chan TurnEvent, error) {
	prompt := b.translateRequest(req)
	if req.Model != "" {
		b.llm.SetOption("model", req.Model)
	}

	ch := make(chan TurnEvent, 64)

	if !b.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			text, err := Retry(ctx, b.retry, func(ctx context.Context) (string, error) {
				out, genErr := b.llm.Generate(ctx, prompt)
				if genErr != nil {
					return "", b.translateError(genErr)
				}
				return out, nil
			})
			if err != nil {
				ch <- TurnEvent{Type: TurnError, Err: err}
				return
			}
			b.emitTurn(ch, text)
		}()
		return ch, nil
	}

	stream, err := b.llm.Stream(ctx, prompt)
	if err != nil {
		return nil, b.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		// Tool calls arrive embedded in the text, so tokens are filtered
		// through an accumulator that withholds anything that may start
		// tool-call JSON. The caller then sees the same cleaned text and
		// trailing tool calls as the blocking path.
		var acc textAccumulator
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- TurnEvent{Type: TurnError, Err: b.translateError(err)}
				return
			}
			if token == nil {
				continue
			}
			if chunk := acc.feed(token.Text); chunk != "" {
				ch <- TurnEvent{Type: TurnText, Text: chunk}
			}
		}

		tail, calls := acc.finish()
		if tail != "" {
			ch <- TurnEvent{Type: TurnText, Text: tail}
		}
		for _, tc := range calls {
			call := tc
			ch <- TurnEvent{Type: TurnToolCall, ToolCall: &call}
		}
		ch <- TurnEvent{Type: TurnDone}
	}()

	return ch, nil
}

// emitTurn splits a blocking-generation result into turn events.
func (b *GollmBackend) emitTurn(ch chan<- TurnEvent, text string) {
	calls := parseToolCalls(text)
	cleaned := removeToolCallJSON(text, calls)
	if cleaned != "" {
		ch <- TurnEvent{Type: TurnText, Text: cleaned}
	}
	for _, tc := range calls {
		call := tc
		ch <- TurnEvent{Type: TurnToolCall, ToolCall: &call}
	}
	ch <- TurnEvent{Type: TurnDone}
}

// translateRequest converts a ConverseRequest into a gollm Prompt.
func (b *GollmBackend) translateRequest(req ConverseRequest) *gollm.Prompt {
	var systemPrompt string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.TextContent() + "\n"
		case RoleUser:
			userParts = append(userParts, msg.TextContent())
		case RoleAssistant:
			// For multi-turn, include assistant context.
			if text := msg.TextContent(); text != "" {
				userParts = append(userParts, "[Assistant]: "+text)
			}
			for _, tc := range msg.ToolCalls() {
				userParts = append(userParts,
					fmt.Sprintf("[Assistant called tool %s]: %s", tc.Name, string(tc.Arguments)))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					prefix := "[Tool Result]"
					if part.ToolResult.IsError {
						prefix = "[Tool Error]"
					}
					userParts = append(userParts, prefix+": "+part.ToolResult.Content)
				}
			}
		}
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// toolCallMarkers are the prefixes a model uses when it embeds tool-call
// JSON in its text output.
var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

const maxMarkerLen = 13 // longest entry in toolCallMarkers

// indexToolCallMarker returns the earliest marker offset in s, or -1.
func indexToolCallMarker(s string) int {
	idx := -1
	for _, m := range toolCallMarkers {
		if i := strings.Index(s, m); i != -1 && (idx == -1 || i < idx) {
			idx = i
		}
	}
	return idx
}

// textAccumulator splits streamed tokens into chunks that are safe to emit
// as text. It withholds everything from the first tool-call marker on, and
// always keeps back a tail short enough to hide a marker split across
// tokens.
type textAccumulator struct {
	buf     strings.Builder
	emitted int
	held    bool
}

// feed appends a token and returns the text now safe to emit, if any.
func (a *textAccumulator) feed(token string) string {
	a.buf.WriteString(token)
	if a.held {
		return ""
	}
	pending := a.buf.String()[a.emitted:]
	if idx := indexToolCallMarker(pending); idx >= 0 {
		a.held = true
		a.emitted += idx
		return pending[:idx]
	}
	safe := len(pending) - maxMarkerLen + 1
	if safe <= 0 {
		return ""
	}
	a.emitted += safe
	return pending[:safe]
}

// finish returns any trailing text plus the tool calls parsed from the
// full accumulated output. Held-back text that turns out not to parse as
// tool calls is released rather than dropped.
func (a *textAccumulator) finish() (string, []ToolCall) {
	s := a.buf.String()
	calls := parseToolCalls(s)
	tail := s[a.emitted:]
	if len(calls) > 0 {
		tail = removeToolCallJSON(tail, calls)
	}
	return tail, calls
}

// parseToolCalls extracts tool calls embedded as JSON in the response text.
func parseToolCalls(text string) []ToolCall {
	start := strings.Index(text, `{"tool_calls"`)
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var calls []ToolCall
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err == nil {
		for _, rc := range rawCalls {
			calls = append(calls, ToolCall{
				ID:        "call_" + uuid.New().String()[:8],
				Name:      rc.Name,
				Arguments: rc.Arguments,
			})
		}
	}
	return calls
}

// removeToolCallJSON strips parsed tool call JSON from the text.
func removeToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	result := text
	for _, pattern := range toolCallMarkers {
		if idx := strings.Index(result, pattern); idx != -1 {
			result = strings.TrimSpace(result[:idx])
		}
	}
	return result
}

// translateError converts a gollm error into the backend error hierarchy.
func (b *GollmBackend) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			BackendError: BackendError{Message: msg, Cause: err}, Provider: b.provider, StatusCode: 401,
		}}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		return &AccessDeniedError{ProviderError: ProviderError{
			BackendError: BackendError{Message: msg, Cause: err}, Provider: b.provider, StatusCode: 403,
		}}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			BackendError: BackendError{Message: msg, Cause: err}, Provider: b.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{
			BackendError: BackendError{Message: msg, Cause: err}, Provider: b.provider, StatusCode: 413,
		}}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: ProviderError{
			BackendError: BackendError{Message: msg, Cause: err}, Provider: b.provider, StatusCode: 500, Retryable: true,
		}}
	case strings.Contains(msgLower, "unmarshal") || strings.Contains(msgLower, "malformed") || strings.Contains(msgLower, "invalid response"):
		return &ProtocolError{BackendError: BackendError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{BackendError: BackendError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection refused") || strings.Contains(msgLower, "no such host"):
		return &UnavailableError{BackendError: BackendError{Message: msg, Cause: err}}
	default:
		// Wrap as a generic provider error (retryable by default).
		return &ProviderError{
			BackendError: BackendError{Message: msg, Cause: err},
			Provider:     b.provider,
			Retryable:    true,
		}
	}
}
