package specialist

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Role describes one LLM specialist.
type Role struct {
	Name        string
	Description string
	Priority    int
	Keywords    []string
	System      string
	// Prompt builds the user turn from the task and its payload.
	Prompt func(description string, payload map[string]interface{}) string
}

// Roles returns the built-in LLM specialists.
func Roles() []Role {
	return []Role{knowledgeRole, codeRole, testRole, reviewRole, debugRole}
}

// RoleByName finds a built-in role.
func RoleByName(name string) (Role, bool) {
	for _, r := range Roles() {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

var knowledgeRole = Role{
	Name:        "knowledge",
	Description: "Web research and information retrieval",
	Priority:    7,
	Keywords:    []string{"search", "research", "find", "lookup", "web"},
	System:      "You are a research specialist. Answer from the sources you are given, mention conflicting perspectives, and acknowledge gaps.",
	Prompt: func(description string, payload map[string]interface{}) string {
		var b strings.Builder
		fmt.Fprintf(&b, "Question: %s\n", description)
		if sources := field(payload, "sources"); sources != "" {
			fmt.Fprintf(&b, "\nSearch Results:\n%s\n", sources)
		}
		b.WriteString(`
Instructions:
- Provide a comprehensive answer with key points
- Focus on factual information from the sources
- If information is insufficient, acknowledge limitations`)
		return b.String()
	},
}

var codeRole = Role{
	Name:        "code",
	Description: "Code generation",
	Priority:    5,
	Keywords:    []string{"code", "implement", "write", "create", "build"},
	System:      "You are an expert software engineer specializing in writing clean, production-quality code.",
	Prompt: func(description string, payload map[string]interface{}) string {
		lang := fieldOr(payload, "language", "python")
		var b strings.Builder
		fmt.Fprintf(&b, "Generate %s code for the following requirements:\n\n**Requirements:**\n%s\n",
			lang, fieldOr(payload, "requirements", description))
		if ctx := field(payload, "context"); ctx != "" {
			fmt.Fprintf(&b, "\n**Context:**\n%s\n", ctx)
		}
		if existing := field(payload, "existing_code"); existing != "" {
			fmt.Fprintf(&b, "\n**Existing code to follow patterns from:**\n```%s\n%s\n```\n", lang, clip(existing, 500))
		}
		fmt.Fprintf(&b, `
**Instructions:**
1. Write production-quality, well-documented code
2. Follow the language conventions strictly
3. Handle errors appropriately

**Format your response as:**
`+"```%s\n[Your code here]\n```"+`

**Explanation:**
[Brief explanation of the code, key decisions, and usage]`, lang)
		return b.String()
	},
}

var testRole = Role{
	Name:        "test",
	Description: "Unit and integration test generation",
	Priority:    5,
	Keywords:    []string{"test", "verify", "check", "validate"},
	System:      "You are an expert test engineer specializing in writing comprehensive, high-quality automated tests.",
	Prompt: func(description string, payload map[string]interface{}) string {
		lang := fieldOr(payload, "language", "python")
		kind := fieldOr(payload, "test_type", "unit")
		return fmt.Sprintf(`Generate %s tests in %s for the following code:

**Code to Test:**
`+"```%s\n%s\n```"+`

**Requirements:**
1. Test all major code paths
2. Test edge cases (empty input, null, boundary values)
3. Test error handling
4. Make tests independent and repeatable

**Format your response as:**
`+"```%s\n[Your test code here]\n```"+`

**Test Coverage Explanation:**
[Explain what scenarios are covered]`, kind, lang, lang, fieldOr(payload, "code", description), lang)
	},
}

var reviewRole = Role{
	Name:        "review",
	Description: "Code review for security, performance and best practices",
	Priority:    5,
	Keywords:    []string{"review", "analyze", "inspect", "audit"},
	System:      "You are a senior code reviewer. Report concrete issues with severity and a suggested fix.",
	Prompt: func(description string, payload map[string]interface{}) string {
		lang := fieldOr(payload, "language", "python")
		focus := fieldOr(payload, "focus_areas", "security, performance, best_practices, code_smells")
		return fmt.Sprintf(`Review this %s code.

Focus areas: %s

`+"```%s\n%s\n```"+`

For each finding give: severity (critical/high/medium/low), location, problem, fix.
End with an overall quality score from 0 to 100.`, lang, focus, lang, fieldOr(payload, "code", description))
	},
}

var debugRole = Role{
	Name:        "debug",
	Description: "Error diagnosis and fix proposals",
	Priority:    5,
	Keywords:    []string{"debug", "fix", "error", "bug", "issue"},
	System:      "You are an expert debugger. Identify the root cause before proposing fixes.",
	Prompt: func(description string, payload map[string]interface{}) string {
		var b strings.Builder
		fmt.Fprintf(&b, "Debug this %s error:\n\n**Error:**\n%s\n",
			fieldOr(payload, "language", "python"), fieldOr(payload, "error_message", description))
		if trace := field(payload, "stack_trace"); trace != "" {
			fmt.Fprintf(&b, "\n**Stack trace:**\n%s\n", trace)
		}
		if code := field(payload, "code_context"); code != "" {
			fmt.Fprintf(&b, "\n**Code context:**\n%s\n", code)
		}
		b.WriteString(`
Provide:
1. Root cause
2. Up to three fixes, most likely first, each with the corrected code
3. How to verify the fix`)
		return b.String()
	},
}

func field(payload map[string]interface{}, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func fieldOr(payload map[string]interface{}, key, fallback string) string {
	if v := field(payload, key); v != "" {
		return v
	}
	return fallback
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
