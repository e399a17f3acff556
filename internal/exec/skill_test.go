package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeRunner struct {
	stdin  []byte
	stdout []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, workDir string, stdin []byte, name string, args ...string) ([]byte, error) {
	f.stdin = stdin
	return f.stdout, f.err
}

func writeSkill(t *testing.T, dir, id string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id), []byte("#!/bin/sh\ncat\n"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestInvokePassesInputAndParsesJSON(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "summarize")

	runner := &fakeRunner{stdout: []byte(`{"summary": "done", "score": 3}`)}
	e := NewSkillExecutor(dir)
	e.SetRunner(runner)

	out, err := e.Invoke(context.Background(), "summarize", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if string(runner.stdin) != `{"text":"hello"}` {
		t.Errorf("unexpected stdin: %s", runner.stdin)
	}
	if out["summary"] != "done" {
		t.Errorf("unexpected output: %v", out)
	}
}

func TestInvokePlainTextOutput(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "echo")

	e := NewSkillExecutor(dir)
	e.SetRunner(&fakeRunner{stdout: []byte("plain result\n")})

	out, err := e.Invoke(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out["output"] != "plain result" {
		t.Errorf("unexpected output: %v", out)
	}
}

func TestInvokeMissingSkill(t *testing.T) {
	e := NewSkillExecutor(t.TempDir())
	if _, err := e.Invoke(context.Background(), "absent", nil); err == nil {
		t.Error("expected error for missing executable")
	}
}

func TestInvokeRejectsPathTraversal(t *testing.T) {
	e := NewSkillExecutor(t.TempDir())
	if _, err := e.Invoke(context.Background(), "../escape", nil); err == nil {
		t.Error("expected error for path separator in skill id")
	}
}

func TestInvokeCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "broken")

	cmdErr := &CommandError{Cmd: "broken", Stderr: "no input", Err: errors.New("exit status 1")}
	e := NewSkillExecutor(dir)
	e.SetRunner(&fakeRunner{err: cmdErr})

	_, err := e.Invoke(context.Background(), "broken", nil)
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CommandError, got %v", err)
	}
}

func TestRealRunner(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\nread line\necho \"{\\\"got\\\": true}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "real"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	e := NewSkillExecutor(dir)
	out, err := e.Invoke(context.Background(), "real", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out["got"] != true {
		t.Errorf("unexpected output: %v", out)
	}
}
