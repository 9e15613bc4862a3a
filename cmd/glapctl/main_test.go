package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/glapctl/internal/protocol/session"
	"github.com/danmuck/glapctl/internal/testutil/testlog"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigTemplateThenValidate(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []string{"server", "client"} {
		path := filepath.Join(t.TempDir(), kind+".toml")
		if _, err := run(t, "config", "template", kind, "-o", path); err != nil {
			t.Fatalf("template %s: %v", kind, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s written: %v", path, err)
		}
		out, err := run(t, "config", "validate", kind, path)
		if err != nil {
			t.Fatalf("validate %s: %v", kind, err)
		}
		if !strings.Contains(out, "validated "+kind) {
			t.Fatalf("unexpected output: %q", out)
		}
	}
}

func TestConfigTemplateToStdout(t *testing.T) {
	testlog.Start(t)
	out, err := run(t, "config", "template", "client")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if !strings.Contains(out, "url = 'ws://localhost:8080/ws'") && !strings.Contains(out, `url = "ws://localhost:8080/ws"`) {
		t.Fatalf("expected url in template, got %q", out)
	}
	if _, err := run(t, "config", "template", "nope"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestVersion(t *testing.T) {
	testlog.Start(t)
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, session.DefaultProtocolVersion) {
		t.Fatalf("expected protocol version in output, got %q", out)
	}
	out, _ = run(t, "version", "--short")
	if strings.TrimSpace(out) != version {
		t.Fatalf("expected %q, got %q", version, out)
	}
}
