package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/martinemde/conductor/modelstream"
)

// maxFetchBytes caps the response body read by fetch_url.
const maxFetchBytes = 5 * 1024 * 1024

func fetchURLTool(client *http.Client) Tool {
	return Tool{
		Definition: modelstream.ToolDefinition{
			Name:        "fetch_url",
			Description: "Fetch the contents of an HTTP or HTTPS URL. Returns the response body as text.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "The URL to fetch. Must be http or https.",
					},
				},
				"required": []string{"url"},
			},
		},
		Run: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := parseArguments(arguments)
			if err != nil {
				return "", err
			}
			url, ok := stringArg(args, "url")
			if !ok || url == "" {
				return "", fmt.Errorf("url is required")
			}
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return "", fmt.Errorf("unsupported URL scheme: %s", url)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return "", fmt.Errorf("invalid URL: %w", err)
			}

			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetch failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return "", fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode >= 400 {
				return "", fmt.Errorf("fetch returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			return string(body), nil
		},
	}
}
