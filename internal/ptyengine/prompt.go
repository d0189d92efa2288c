package ptyengine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// sanitizePromptForShell makes prompt safe to write as a single line into a
// PTY: CR/LF would otherwise be split by the line-oriented terminal, so
// they're replaced with spaces; double quotes are escaped; surrounding
// whitespace is trimmed.
func sanitizePromptForShell(prompt string) string {
	s := strings.ReplaceAll(prompt, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.TrimSpace(s)
}

// shouldUseNonPTYSpawn is the single documented exception to the default
// PTY-wrapped interactive shell: Codex on Windows with a non-empty prompt
// runs its one-shot `exec` form directly, without a terminal.
func shouldUseNonPTYSpawn(agentType, prompt string) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	return strings.EqualFold(agentType, "codex") && strings.TrimSpace(prompt) != ""
}

// buildAgentCommand returns the command line written into the PTY for
// agentType, sanitizing prompt itself via sanitizePromptForShell. The
// non-PTY path does not use it; see nonPTYArgs. promptFile is the path
// `claude` is told to read its prompt from; callers in PTY mode must have
// already written the raw prompt there.
func buildAgentCommand(cliPath, agentType, prompt, promptFile string) string {
	sanitized := sanitizePromptForShell(prompt)
	switch strings.ToLower(agentType) {
	case "claude":
		return fmt.Sprintf("%s --print < %s", cliPath, shellQuote(promptFile))
	case "codex":
		return fmt.Sprintf(`%s exec --full-auto -c model_reasoning_effort=low "%s" && %s`, cliPath, sanitized, cliPath)
	case "gemini", "copilot", "aider", "goose", "cline", "continue":
		return fmt.Sprintf(`%s --prompt "%s"`, cliPath, sanitized)
	default:
		return fmt.Sprintf(`%s "%s"`, cliPath, sanitized)
	}
}

// nonPTYArgs returns the argv used for the Codex-on-Windows direct spawn.
func nonPTYArgs(prompt string) []string {
	return []string{"exec", "--full-auto", "-c", "model_reasoning_effort=low", sanitizePromptForShell(prompt)}
}

func shellQuote(path string) string {
	if strings.ContainsAny(path, " \t") {
		return `"` + path + `"`
	}
	return path
}

// resolveAgentPath implements the Worker Lifecycle Engine's precondition:
// a custom path must exist on disk as given; otherwise the agent name must
// be discoverable via the platform's command search. On Windows this
// prefers, in order, .cmd, .exe, .bat, .ps1 and also probes the per-user npm
// install directory under %APPDATA%; on Unix it defers to `which`.
func resolveAgentPath(agentType, customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err != nil {
			return "", fmt.Errorf("configured cli path %q: %w", customPath, err)
		}
		return customPath, nil
	}

	if runtime.GOOS == "windows" {
		return resolveWindowsCLIPath(agentType)
	}

	out, err := exec.Command("which", agentType).Output()
	if err != nil {
		return "", fmt.Errorf("which %s: %w", agentType, err)
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", fmt.Errorf("which %s: empty result", agentType)
	}
	return path, nil
}

// resolveWindowsCLIPath runs `where <name>` and picks the candidate with the
// highest-priority extension; failing that, it probes the npm global
// install directory under %APPDATA%\npm.
func resolveWindowsCLIPath(agentType string) (string, error) {
	priority := map[string]int{".cmd": 0, ".exe": 1, ".bat": 2, ".ps1": 3}

	out, err := exec.Command("where", agentType).Output()
	if err == nil {
		var candidates []string
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\r\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				candidates = append(candidates, line)
			}
		}
		if len(candidates) > 0 {
			best := candidates[0]
			bestRank, ok := priority[strings.ToLower(filepath.Ext(best))]
			if !ok {
				bestRank = len(priority)
			}
			for _, c := range candidates[1:] {
				rank, ok := priority[strings.ToLower(filepath.Ext(c))]
				if !ok {
					rank = len(priority)
				}
				if rank < bestRank {
					best, bestRank = c, rank
				}
			}
			return best, nil
		}
	}

	if appData := os.Getenv("APPDATA"); appData != "" {
		for _, ext := range []string{".cmd", ".exe", ".bat", ".ps1"} {
			candidate := filepath.Join(appData, "npm", agentType+ext)
			if _, statErr := os.Stat(candidate); statErr == nil {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("could not resolve %s on PATH or in npm global install dir", agentType)
}

// interactiveShell returns the shell to spawn inside the PTY on this
// platform: `cmd` on Windows, $SHELL (or /bin/bash) elsewhere.
func interactiveShell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}
