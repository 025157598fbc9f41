package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/internal/classtest"
	"github.com/slarse/duplicate-checkcast-remover/rewrite"
)

func writeClass(t *testing.T) string {
	t.Helper()
	a := (&classtest.Asm{}).
		U16(classfile.OpCheckcast, 4).
		U16(classfile.OpCheckcast, 4).
		U16(classfile.OpCheckcast, 4).
		Op(classfile.OpAreturn)
	data := classtest.New("com/example/Foo").
		Method(classtest.Method{Name: "cast", Code: a.Bytes()}).
		Bytes()
	path := filepath.Join(t.TempDir(), "Foo.class")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "Missing.class")
	garbage := filepath.Join(dir, "Garbage.class")
	if err := os.WriteFile(garbage, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		args      []string
		code      int
		stdout    string
		stderrHas string
	}{
		{"no arguments", nil, 1, usage + "\n", ""},
		{"too many arguments", []string{"A.class", "B.class"}, 1, usage + "\n", ""},
		{"unknown flag", []string{"-x", "A.class"}, 1, usage + "\n", ""},
		{"missing file", []string{missing}, 1, "", "No such file: " + missing + "\n"},
		{"directory", []string{dir}, 1, "", "No such file: " + dir + "\n"},
		{"malformed", []string{garbage}, 1, "", "Error: "},
		{"rewrite", []string{"-j", "2", writeClass(t)}, 0,
			"Removed 2 duplicated CHECKCAST instructions from com.example.Foo#cast\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d (stderr %q)", code, tt.code, stderr.String())
			}
			if stdout.String() != tt.stdout {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.stdout)
			}
			if !strings.Contains(stderr.String(), tt.stderrHas) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.stderrHas)
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	path := writeClass(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{path}, &stdout, &stderr); code != 0 {
		t.Fatalf("first run exit %d: %s", code, stderr.String())
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	stdout.Reset()
	if code := run([]string{path}, &stdout, &stderr); code != 0 {
		t.Fatalf("second run exit %d: %s", code, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("second run reported %q", stdout.String())
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("second run changed the file")
	}
}

func reviewFixture(t *testing.T) (*reviewModel, string, []byte) {
	t.Helper()
	path := writeClass(t)
	data, perm, err := rewrite.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out, report, err := rewrite.Bytes(data)
	if err != nil {
		t.Fatal(err)
	}
	m := newReviewModel(path, out, perm, report)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, path, data
}

func TestReviewWrite(t *testing.T) {
	m, path, _ := reviewFixture(t)

	if !strings.Contains(m.View(), "checkcast") {
		t.Errorf("view does not show the disassembly:\n%s", m.View())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	if cmd == nil || m.state != stateWriting {
		t.Fatalf("w did not start writing (state %d)", m.state)
	}
	m.Update(cmd())
	if m.state != stateWritten || m.err != nil {
		t.Fatalf("state = %d, err = %v", m.state, m.err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, m.data) {
		t.Errorf("file does not hold the rewritten class")
	}
}

func TestReviewDiscard(t *testing.T) {
	m, path, orig := reviewFixture(t)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if m.state != stateDiscarded {
		t.Fatalf("state = %d, want discarded", m.state)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, orig) {
		t.Errorf("discarded review modified the file")
	}
}
