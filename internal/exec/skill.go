package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SkillExecutor invokes skills as executables under a skills directory.
// The executable for skill "review-doc" is {dir}/review-doc; input is
// written to stdin as JSON and stdout is parsed as the output map. Plain
// text stdout is wrapped under an "output" key.
type SkillExecutor struct {
	dir     string
	workDir string
	runner  CommandRunner
}

// NewSkillExecutor creates an executor rooted at the given skills directory.
func NewSkillExecutor(dir string) *SkillExecutor {
	return &SkillExecutor{dir: dir, runner: NewRunner()}
}

// SetWorkDir sets the working directory skill commands run in.
func (e *SkillExecutor) SetWorkDir(dir string) {
	e.workDir = dir
}

// SetRunner replaces the command runner. Used by tests.
func (e *SkillExecutor) SetRunner(r CommandRunner) {
	if r != nil {
		e.runner = r
	}
}

// Invoke runs the skill's executable with the input as JSON on stdin.
func (e *SkillExecutor) Invoke(ctx context.Context, skillID string, input map[string]any) (map[string]any, error) {
	if strings.ContainsAny(skillID, `/\`) || skillID == "" {
		return nil, fmt.Errorf("invalid skill id %q", skillID)
	}

	path := filepath.Join(e.dir, skillID)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("skill %s: no executable at %s", skillID, path)
	}

	stdin, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("skill %s: encoding input: %w", skillID, err)
	}

	stdout, err := e.runner.Run(ctx, e.workDir, stdin, path)
	if err != nil {
		return nil, fmt.Errorf("skill %s: %w", skillID, err)
	}

	return parseOutput(stdout), nil
}

// parseOutput decodes skill stdout. JSON objects become the output map;
// anything else is kept verbatim under "output".
func parseOutput(stdout []byte) map[string]any {
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return map[string]any{}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out
	}
	return map[string]any{"output": trimmed}
}
