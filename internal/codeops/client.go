// Package codeops talks to the sandboxed file/shell backend over HTTP.
// Every operation is a POST with a JSON body and a {success, error?}
// response envelope; mutating operations are validated before the
// request leaves the process.
package codeops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relocato/assistant/internal/logging"
	"github.com/relocato/assistant/internal/validate"
)

// Client is the HTTP client for the code backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope is the backend's common response shape. Operation-specific
// fields ride alongside.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Content          string      `json:"content,omitempty"`
	Size             int         `json:"size,omitempty"`
	ReplacementCount int         `json:"replacementCount,omitempty"`
	Entries          []FileEntry `json:"entries,omitempty"`
	Matches          []Match     `json:"matches,omitempty"`
	Stdout           string      `json:"stdout,omitempty"`
	Stderr           string      `json:"stderr,omitempty"`
	ExitCode         int         `json:"exitCode,omitempty"`
	Output           string      `json:"output,omitempty"`
}

// FileEntry is a directory listing entry.
type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int    `json:"size"`
}

// Match is a code search hit.
type Match struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// FileContent is the result of a read.
type FileContent struct {
	Content string
	Size    int
}

// ExecResult is the result of a shell execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("backend returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("code backend: %s", msg)
	}
	return &env, nil
}

// Health verifies the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("code backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("code backend health returned status %d", resp.StatusCode)
	}
	return nil
}

// ReadFile reads a file from the sandbox.
func (c *Client) ReadFile(ctx context.Context, path string) (*FileContent, error) {
	env, err := c.post(ctx, "/read", map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	return &FileContent{Content: env.Content, Size: env.Size}, nil
}

// WriteFile writes content to a file. Path and content are validated
// before the backend is contacted.
func (c *Client) WriteFile(ctx context.Context, path, content string) error {
	if result := validate.Path(path); !result.Valid {
		return fmt.Errorf("path validation failed: %s", strings.Join(result.Errors, "; "))
	}
	if result := validate.Code(content); !result.Valid {
		return fmt.Errorf("code validation failed: %s", strings.Join(result.Errors, "; "))
	}

	_, err := c.post(ctx, "/write", map[string]string{"path": path, "content": content})
	return err
}

// EditFile replaces oldStr with newStr in the file and returns how many
// replacements were made.
func (c *Client) EditFile(ctx context.Context, path, oldStr, newStr string) (int, error) {
	if result := validate.Path(path); !result.Valid {
		return 0, fmt.Errorf("path validation failed: %s", strings.Join(result.Errors, "; "))
	}

	env, err := c.post(ctx, "/edit", map[string]string{
		"path":      path,
		"oldString": oldStr,
		"newString": newStr,
	})
	if err != nil {
		return 0, err
	}
	return env.ReplacementCount, nil
}

// ListFiles lists a directory in the sandbox.
func (c *Client) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	env, err := c.post(ctx, "/list", map[string]string{"path": path})
	if err != nil {
		return nil, err
	}
	return env.Entries, nil
}

// SearchCode searches for a pattern, optionally below path.
func (c *Client) SearchCode(ctx context.Context, pattern, path string) ([]Match, error) {
	env, err := c.post(ctx, "/search", map[string]string{"pattern": pattern, "path": path})
	if err != nil {
		return nil, err
	}
	return env.Matches, nil
}

// Execute runs a shell command in the sandbox. The command is validated
// before the backend is contacted.
func (c *Client) Execute(ctx context.Context, command string) (*ExecResult, error) {
	if result := validate.Command(command); !result.Valid {
		return nil, fmt.Errorf("command validation failed: %s", strings.Join(result.Errors, "; "))
	}

	env, err := c.post(ctx, "/execute", map[string]string{"command": command})
	if err != nil {
		return nil, err
	}
	return &ExecResult{Stdout: env.Stdout, Stderr: env.Stderr, ExitCode: env.ExitCode}, nil
}

// Git runs a git operation (status, add, commit, diff, log).
func (c *Client) Git(ctx context.Context, action string, params map[string]string) (string, error) {
	payload := map[string]interface{}{"action": action}
	if len(params) > 0 {
		payload["params"] = params
	}
	env, err := c.post(ctx, "/git", payload)
	if err != nil {
		return "", err
	}
	if env.Output != "" {
		return env.Output, nil
	}
	return env.Stdout, nil
}

// CreateComponent validates the component name, renders the standard
// component scaffold and writes it under directory.
func (c *Client) CreateComponent(ctx context.Context, name, directory string) (string, error) {
	if result := validate.ComponentName(name); !result.Valid {
		return "", fmt.Errorf("component name validation failed: %s", strings.Join(result.Errors, "; "))
	}
	if directory == "" {
		directory = "src/components"
	}

	content, err := renderComponent(name)
	if err != nil {
		return "", err
	}

	path := directory + "/" + name + ".tsx"
	if err := c.WriteFile(ctx, path, content); err != nil {
		return "", err
	}

	logging.Get(logging.CategoryCodeOps).Info("Component scaffold created: %s", path)
	return path, nil
}
