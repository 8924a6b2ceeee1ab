package planner

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/relocato/assistant/internal/logging"
)

const (
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 2000
)

// AnthropicPlanner implements Planner using the official Anthropic SDK.
type AnthropicPlanner struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicPlanner creates a planner backed by the Anthropic API.
func NewAnthropicPlanner(apiKey, model string, maxTokens int, temperature float64) (*AnthropicPlanner, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, fmt.Errorf("anthropic planner requires an API key")
	}
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicPlanner{
		client:      anthropic.NewClient(option.WithAPIKey(key)),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
	}, nil
}

func (p *AnthropicPlanner) newParams(system string, content []anthropic.ContentBlockParamUnion) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: content,
			},
		},
	}
	if sys := strings.TrimSpace(system); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}
	return params
}

// GenerateText produces a plain text completion.
func (p *AnthropicPlanner) GenerateText(ctx context.Context, system, user string) (string, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "GenerateText")
	defer timer.Stop()

	params := p.newParams(system, []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)})
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", &Error{Op: "text", Err: err}
	}
	return collectText(msg.Content), nil
}

// GenerateVision produces a single-shot completion with an inline image.
// Data-URI prefixes ("data:image/png;base64,") are stripped.
func (p *AnthropicPlanner) GenerateVision(ctx context.Context, system, user, imageBase64 string) (string, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "GenerateVision")
	defer timer.Stop()

	mediaType, data := splitImageData(imageBase64)
	content := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64(mediaType, data),
		anthropic.NewTextBlock(user),
	}

	msg, err := p.client.Messages.New(ctx, p.newParams(system, content))
	if err != nil {
		return "", &Error{Op: "vision", Err: err}
	}
	return collectText(msg.Content), nil
}

// GenerateWithTools produces text and at most one tool call. Extra
// tool_use blocks past the first are ignored.
func (p *AnthropicPlanner) GenerateWithTools(ctx context.Context, system, user string, tools []ToolSchema) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "GenerateWithTools")
	defer timer.Stop()

	params := p.newParams(system, []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)})
	params.Tools = convertTools(tools)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &Error{Op: "tool_use", Err: err}
	}

	resp := &Response{Text: collectText(msg.Content)}
	for _, block := range msg.Content {
		if block.Type != "tool_use" {
			continue
		}
		args := block.Input
		if len(args) == 0 {
			args = []byte("{}")
		}
		resp.ToolCall = &ToolCall{Name: block.Name, Args: args}
		break
	}

	logging.Get(logging.CategoryPlanner).Debug("Planner response: text=%dB tool=%v",
		len(resp.Text), resp.ToolCall != nil)
	return resp, nil
}

func convertTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := &anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       constant.Object("object"),
				Properties: t.Properties,
				Required:   t.Required,
			},
			Type: anthropic.ToolTypeCustom,
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: tool})
	}
	return result
}

func collectText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String()
}

// splitImageData strips a data-URI prefix and extracts the media type.
func splitImageData(image string) (mediaType, data string) {
	mediaType = "image/png"
	data = image
	if strings.HasPrefix(image, "data:") {
		if idx := strings.Index(image, ";base64,"); idx > 5 {
			mediaType = image[5:idx]
			data = image[idx+len(";base64,"):]
		}
	}
	return mediaType, data
}
