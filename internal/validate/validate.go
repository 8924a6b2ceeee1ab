// Package validate performs pure pre-flight checks on tool arguments
// before they reach any side effect. Checks are deterministic and never
// panic: the same input always yields the same verdict.
package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Result is the outcome of a validation check.
// Valid is false iff Errors is non-empty; warnings never block.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func newResult() *Result {
	return &Result{Valid: true}
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *Result) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ============================================================================
// PATH CHECKS
// ============================================================================

// secretPatterns match credential-bearing files that tools must never
// read or write, regardless of how plausible the request looks.
var secretPatterns = []string{
	".env",
	"secret",
	"credential",
	"password",
	"id_rsa",
	"private_key",
	".pem",
	"api_key",
	"apikey",
	"token",
}

var knownRoots = []string{
	"src/",
	"public/",
	"scripts/",
	"docs/",
}

var expectedExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".json", ".css", ".scss", ".md", ".html", ".yaml", ".yml", ".txt",
}

// Path checks a file path for traversal and secret access. Traversal
// and secret-like substrings are hard errors; unusual extensions or
// locations outside the known roots only warn.
func Path(path string) *Result {
	result := newResult()

	if strings.TrimSpace(path) == "" {
		result.addError("path must not be empty")
		return result
	}

	if strings.Contains(path, "..") {
		result.addError("path contains traversal sequence: %s", path)
	}

	lower := strings.ToLower(path)
	for _, pattern := range secretPatterns {
		if strings.Contains(lower, pattern) {
			result.addError("path touches a protected file (%s): %s", pattern, path)
			break
		}
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		known := false
		for _, e := range expectedExtensions {
			if ext == e {
				known = true
				break
			}
		}
		if !known {
			result.addWarning("unusual file extension: %s", ext)
		}
	}

	inRoot := false
	for _, root := range knownRoots {
		if strings.HasPrefix(path, root) {
			inRoot = true
			break
		}
	}
	if !inRoot {
		result.addWarning("path is outside the known project roots: %s", path)
	}

	return result
}

// ============================================================================
// CODE CHECKS
// ============================================================================

var (
	awaitRe  = regexp.MustCompile(`\bawait\b`)
	asyncRe  = regexp.MustCompile(`\basync\b`)
	returnRe = regexp.MustCompile(`\breturn\b`)
	// A top-level component definition: exported const/function with a
	// capitalized name.
	componentDefRe = regexp.MustCompile(`(?m)^(?:export\s+)?(?:const|function)\s+[A-Z]\w*`)
	jsxUsageRe     = regexp.MustCompile(`<[A-Z]\w*[\s/>]`)
	importedRe     = regexp.MustCompile(`(?m)^import\b`)
)

// Code checks a source snippet. Unbalanced delimiters, await outside an
// async function, and a component body without a return are hard
// errors; missing imports for referenced components only warn.
func Code(code string) *Result {
	result := newResult()

	if strings.TrimSpace(code) == "" {
		result.addError("code must not be empty")
		return result
	}

	checkBalance(code, result)

	if awaitRe.MatchString(code) && !asyncRe.MatchString(code) {
		result.addError("await used without an async function")
	}

	if componentDefRe.MatchString(code) && !returnRe.MatchString(code) {
		result.addError("component body has no return statement")
	}

	if jsxUsageRe.MatchString(code) && !importedRe.MatchString(code) {
		result.addWarning("component usage without any import statement")
	}

	return result
}

// checkBalance verifies braces, parens and brackets pair up, skipping
// string and template literals so quoted delimiters don't count.
func checkBalance(code string, result *Result) {
	type counter struct {
		open, close rune
		name        string
		depth       int
	}
	counters := []*counter{
		{open: '{', close: '}', name: "braces"},
		{open: '(', close: ')', name: "parentheses"},
		{open: '[', close: ']', name: "brackets"},
	}

	var quote rune
	escaped := false
	for _, ch := range code {
		if escaped {
			escaped = false
			continue
		}
		if quote != 0 {
			switch ch {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
			continue
		}
		for _, c := range counters {
			switch ch {
			case c.open:
				c.depth++
			case c.close:
				c.depth--
			}
		}
	}

	for _, c := range counters {
		if c.depth != 0 {
			result.addError("unbalanced %s (depth %+d)", c.name, c.depth)
		}
	}
}

// ============================================================================
// COMMAND CHECKS
// ============================================================================

// dangerousCommands are always rejected, no matter what else the
// command line contains.
var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-\w*[rf]\w*\s+)+/`),
	regexp.MustCompile(`rm\s+-rf?\s+\*`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s`),
	regexp.MustCompile(`chmod\s+777`),
	regexp.MustCompile(`mkfs`),
	regexp.MustCompile(`dd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd`),
	regexp.MustCompile(`:\(\)\s*\{.*\}\s*;?\s*:`), // fork bomb
	regexp.MustCompile(`\b(shutdown|reboot|halt)\b`),
	regexp.MustCompile(`\bcurl\b.*\|\s*(sh|bash)`),
	regexp.MustCompile(`\bwget\b.*\|\s*(sh|bash)`),
}

// allowedPrograms is the set of program names the assistant is expected
// to invoke. Anything else is allowed through with a warning.
var allowedPrograms = map[string]bool{
	"npm": true, "npx": true, "node": true, "yarn": true, "pnpm": true,
	"git": true, "tsc": true, "eslint": true, "prettier": true, "jest": true, "vitest": true,
	"ls": true, "cat": true, "grep": true, "find": true, "echo": true,
	"pwd": true, "mkdir": true, "cp": true, "mv": true, "touch": true, "head": true, "tail": true, "wc": true,
}

// Command checks a shell command. Destructive patterns are hard errors;
// an unexpected program name only warns.
func Command(command string) *Result {
	result := newResult()

	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		result.addError("command must not be empty")
		return result
	}

	for _, re := range dangerousCommands {
		if re.MatchString(trimmed) {
			result.addError("command matches dangerous pattern %q", re.String())
		}
	}

	fields := strings.Fields(trimmed)
	if len(fields) > 0 && !allowedPrograms[fields[0]] {
		result.addWarning("program %q is not on the expected list", fields[0])
	}

	return result
}

// ============================================================================
// IDENTIFIER CHECKS
// ============================================================================

const identifierSoftCap = 50

// ComponentName checks a component identifier: capital first letter and
// alphanumeric only are hard requirements, excessive length only warns.
func ComponentName(name string) *Result {
	result := newResult()

	if name == "" {
		result.addError("component name must not be empty")
		return result
	}

	runes := []rune(name)
	if !unicode.IsUpper(runes[0]) {
		result.addError("component name must start with a capital letter: %s", name)
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			result.addError("component name must be alphanumeric: %s", name)
			break
		}
	}
	if len(runes) > identifierSoftCap {
		result.addWarning("component name is unusually long (%d characters)", len(runes))
	}

	return result
}
