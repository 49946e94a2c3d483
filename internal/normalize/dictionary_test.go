package normalize

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseDictionary(t *testing.T) {
	contents := "# comment\nシーピーユー -> CPU\n\n ジーピーユー->GPU\ninvalid line\n"
	rules, err := ParseDictionary(strings.NewReader(contents))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d: %+v", len(rules), rules)
	}
	if rules[0] != (Rule{From: "シーピーユー", To: "CPU"}) {
		t.Fatalf("unexpected first rule %+v", rules[0])
	}
	if rules[1] != (Rule{From: "ジーピーユー", To: "GPU"}) {
		t.Fatalf("unexpected second rule %+v", rules[1])
	}
}

func TestParseDictionarySkipsEmptySource(t *testing.T) {
	rules, err := ParseDictionary(strings.NewReader("  -> nothing\nfoo ->\r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rules) != 1 || rules[0].From != "foo" || rules[0].To != "" {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestParseDictionarySplitsOnFirstSeparator(t *testing.T) {
	rules, err := ParseDictionary(strings.NewReader("arrow -> ->"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rules) != 1 || rules[0].To != "->" {
		t.Fatalf("unexpected rules %+v", rules)
	}
}

func TestLoadDictionaryCreatesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dictionary.txt")
	rules, err := LoadDictionary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("template must not contain active rules, got %+v", rules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read template: %v", err)
	}
	if string(data) != DefaultDictionaryTemplate {
		t.Fatalf("unexpected template %q", data)
	}
}

func TestEnsureDictionaryFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.txt")
	if err := os.WriteFile(path, []byte("a -> b\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := EnsureDictionaryFile(path); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "a -> b\n" {
		t.Fatalf("existing dictionary overwritten: %q", data)
	}
}

func TestDictionaryReloadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.txt")
	if err := os.WriteFile(path, []byte("a -> b\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dict, err := OpenDictionary(path, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	before := dict.Rules()

	if err := os.WriteFile(path, []byte("a -> c\nx -> y\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := dict.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	after := dict.Rules()

	if len(before) != 1 || before[0].To != "b" {
		t.Fatalf("earlier snapshot changed: %+v", before)
	}
	if len(after) != 2 || after[0].To != "c" {
		t.Fatalf("unexpected reloaded rules %+v", after)
	}
}
