// Package templates implements the Template Renderer: `{{dotted.name}}`
// substitution, variable extraction and validation, and the built-in prompt
// templates used when a Task does not name a custom one.
package templates

import (
	"os"
	"path/filepath"
	"strings"
)

// Template is a named prompt body, either built in or loaded from a user's
// templates directory.
type Template struct {
	Name        string
	Description string
	Content     string
	IsBuiltin   bool
}

// Builtin returns the fixed catalog of prompt templates shipped with the
// core. Names and bodies mirror the original source's seed templates.
func Builtin() []Template {
	return []Template{
		{
			Name:        "implement_feature",
			Description: "Implement a new feature",
			IsBuiltin:   true,
			Content: `You are working on the project "{{rig.name}}".
You are on branch "{{crew.branch}}" in the repo at "{{repo.root}}".

Task: {{task.title}}

Description:
{{task.description}}

Please implement this feature. Write clean, well-structured code that follows the existing codebase patterns.
After implementing, briefly summarize what you changed.`,
		},
		{
			Name:        "fix_bug",
			Description: "Fix a bug",
			IsBuiltin:   true,
			Content: `You are working on the project "{{rig.name}}".
You are on branch "{{crew.branch}}" in the repo at "{{repo.root}}".

Bug to fix: {{task.title}}

Description:
{{task.description}}

Please investigate and fix this bug. Explain the root cause before applying the fix.
Make sure the fix doesn't introduce regressions.`,
		},
		{
			Name:        "write_tests",
			Description: "Write tests for existing code",
			IsBuiltin:   true,
			Content: `You are working on the project "{{rig.name}}".
You are on branch "{{crew.branch}}" in the repo at "{{repo.root}}".

Task: {{task.title}}

Description:
{{task.description}}

Please write comprehensive tests. Cover edge cases, error conditions, and happy paths.
Follow the existing test patterns in the codebase.`,
		},
		{
			Name:        "refactor",
			Description: "Refactor existing code",
			IsBuiltin:   true,
			Content: `You are working on the project "{{rig.name}}".
You are on branch "{{crew.branch}}" in the repo at "{{repo.root}}".

Refactoring task: {{task.title}}

Description:
{{task.description}}

Please refactor the code as described. Ensure behavior is preserved, no functional changes unless explicitly requested.
Keep the code clean and well-organized.`,
		},
	}
}

// Render replaces every exact `{{name}}` token whose name is a key of vars,
// one variable at a time. Names not present in vars are left as literal
// text — unknown names are not an error at render time. Tokens with
// whitespace inside the braces (`{{ name }}`) are not matched, and a
// substituted value that itself contains a `{{key}}` token for a key handled
// later in the map's iteration order is substituted as well.
func Render(content string, vars map[string]string) string {
	result := content
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// RenderBuiltin looks up name in Builtin() and renders it against the
// standard five-variable task/rig/crew mapping, falling back to a minimal
// "Task: title\n\ndescription" body when name is not a known template.
func RenderBuiltin(name, taskTitle, taskDescription, rigName, crewBranch, repoRoot string) string {
	content := ""
	found := false
	for _, t := range Builtin() {
		if t.Name == name {
			content = t.Content
			found = true
			break
		}
	}
	if !found {
		return "Task: " + taskTitle + "\n\n" + taskDescription
	}

	vars := map[string]string{
		"task.title":       taskTitle,
		"task.description": taskDescription,
		"rig.name":         rigName,
		"crew.branch":      crewBranch,
		"repo.root":        repoRoot,
	}
	return Render(content, vars)
}

// ExtractVariables returns the `{{dotted.name}}` references in content, in
// first-appearance order with duplicates removed. Whitespace inside the
// braces is trimmed before comparison.
func ExtractVariables(content string) []string {
	var vars []string
	seen := make(map[string]bool)

	i := 0
	for i+3 < len(content) {
		if content[i] == '{' && content[i+1] == '{' {
			start := i + 2
			rel := strings.Index(content[start:], "}}")
			if rel < 0 {
				i += 2
				continue
			}
			name := strings.TrimSpace(content[start : start+rel])
			if name != "" && !seen[name] {
				seen[name] = true
				vars = append(vars, name)
			}
			i = start + rel + 2
			continue
		}
		i++
	}
	return vars
}

// ValidateVariables returns the subset of ExtractVariables(content) that is
// absent from vars.
func ValidateVariables(content string, vars map[string]string) []string {
	var missing []string
	for _, name := range ExtractVariables(content) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// LoadCustom reads every .txt/.md file directly under dir and returns one
// Template per file, using the filename stem as the template name.
func LoadCustom(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Template
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".txt" && ext != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		out = append(out, Template{
			Name:        name,
			Description: "Custom template: " + name,
			Content:     string(data),
			IsBuiltin:   false,
		})
	}
	return out, nil
}
