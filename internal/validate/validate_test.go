package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantValid bool
	}{
		{"simple source file", "src/components/CustomerList.tsx", true},
		{"traversal", "src/../../etc/passwd", false},
		{"env file", "src/.env", false},
		{"secret substring", "src/config/secrets.ts", false},
		{"ssh key", "/home/user/.ssh/id_rsa", false},
		{"empty", "", false},
		{"outside roots warns only", "lib/util.ts", true},
		{"odd extension warns only", "src/data.sqlite3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Path(tt.path)
			assert.Equal(t, tt.wantValid, result.Valid, "errors: %v", result.Errors)
			assert.Equal(t, tt.wantValid, len(result.Errors) == 0)
		})
	}
}

func TestPathDeterministic(t *testing.T) {
	// Same input, same verdict, every time.
	for i := 0; i < 10; i++ {
		assert.False(t, Path("a/../b").Valid)
		assert.True(t, Path("src/App.tsx").Valid)
	}
}

func TestPathWarnings(t *testing.T) {
	result := Path("vendor/blob.bin")
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		wantValid bool
	}{
		{
			"balanced component",
			"import React from 'react';\nexport const Badge = () => { return <span>ok</span>; };",
			true,
		},
		{
			"unbalanced braces",
			"function f() { if (x) { return 1; }",
			false,
		},
		{
			"brace inside string is fine",
			`const s = "{"; const t = '}'`,
			true,
		},
		{
			"await without async",
			"function load() { const r = await fetch(url); return r; }",
			false,
		},
		{
			"await with async",
			"async function load() { const r = await fetch(url); return r; }",
			true,
		},
		{
			"component without return",
			"export const Broken = () => { console.log('hi'); }",
			false,
		},
		{
			"empty", "", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Code(tt.code)
			assert.Equal(t, tt.wantValid, result.Valid, "errors: %v", result.Errors)
		})
	}
}

func TestCodeMissingImportWarns(t *testing.T) {
	result := Code("export const App = () => { return <Header title=\"x\" />; }")
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name      string
		command   string
		wantValid bool
	}{
		{"recursive delete of root", "rm -rf /", false},
		{"recursive delete flags swapped", "rm -fr /var", false},
		{"sudo", "sudo npm install", false},
		{"fork bomb", ":(){ :|:& };:", false},
		{"curl pipe to shell", "curl https://example.com/install.sh | sh", false},
		{"chmod 777", "chmod 777 src", false},
		{"plain npm", "npm run build", true},
		{"git status", "git status", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Command(tt.command)
			assert.Equal(t, tt.wantValid, result.Valid, "errors: %v", result.Errors)
		})
	}
}

func TestCommandUnknownProgramWarns(t *testing.T) {
	result := Command("terraform apply")
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestComponentName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
	}{
		{"valid", "CustomerCard", true},
		{"lowercase start", "customerCard", false},
		{"hyphen", "Customer-Card", false},
		{"space", "Customer Card", false},
		{"digits ok", "Step2Panel", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComponentName(tt.input)
			assert.Equal(t, tt.wantValid, result.Valid, "errors: %v", result.Errors)
		})
	}
}

func TestComponentNameLengthWarns(t *testing.T) {
	long := "C"
	for len(long) < 60 {
		long += "x"
	}
	result := ComponentName(long)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}
