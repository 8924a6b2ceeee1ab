package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAnthropicPlannerRequiresKey(t *testing.T) {
	_, err := NewAnthropicPlanner("", "", 0, 0)
	assert.Error(t, err)
}

func TestNewAnthropicPlannerDefaults(t *testing.T) {
	p, err := NewAnthropicPlanner("sk-test", "", 0, 0.7)
	assert.NoError(t, err)
	assert.Equal(t, defaultModel, p.model)
	assert.Equal(t, int64(defaultMaxTokens), p.maxTokens)
}

func TestSplitImageData(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantType  string
		wantData  string
	}{
		{"raw base64", "iVBORw0KGgo=", "image/png", "iVBORw0KGgo="},
		{"png data uri", "data:image/png;base64,iVBORw0KGgo=", "image/png", "iVBORw0KGgo="},
		{"jpeg data uri", "data:image/jpeg;base64,/9j/4AAQ", "image/jpeg", "/9j/4AAQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data := splitImageData(tt.input)
			assert.Equal(t, tt.wantType, mediaType)
			assert.Equal(t, tt.wantData, data)
		})
	}
}
