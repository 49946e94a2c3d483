package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pipboy3000/usual-tone-of-voice/internal/capture"
	"github.com/pipboy3000/usual-tone-of-voice/internal/protocol"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

func TestRunNormalize(t *testing.T) {
	dict := filepath.Join(t.TempDir(), "dictionary.txt")
	if err := os.WriteFile(dict, []byte("# terms\nゴーラン -> Go\n"), 0o644); err != nil {
		t.Fatalf("write dictionary: %v", err)
	}
	var out bytes.Buffer
	if err := runNormalize(strings.NewReader("ゴーランでジェイソン"), &out, dict); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.String() != "GoでJSON" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunAnalyze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = 8000
	}
	if err := capture.WriteWAV(path, samples, 16000, 1); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	var out bytes.Buffer
	if err := runAnalyze(&out, path, "balanced", 0.35); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out.String(), "active=1.00s") || !strings.Contains(out.String(), "verdict=speech") {
		t.Fatalf("unexpected report %q", out.String())
	}
	if err := runAnalyze(&out, path, "loud", 0.35); err == nil {
		t.Fatal("expected sensitivity error")
	}
}

func TestAnalyzeSettingsFollowDaemonDefaults(t *testing.T) {
	level, minSpeech, err := analyzeSettings("", "", 0)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if level != "balanced" || minSpeech != session.DefaultMinSpeechSeconds {
		t.Fatalf("expected daemon defaults, got %q %v", level, minSpeech)
	}

	t.Setenv("TONEVOICE_SESSION_MIN_SPEECH_SECONDS", "0.8")
	t.Setenv("TONEVOICE_SESSION_SENSITIVITY", "strict")
	level, minSpeech, err = analyzeSettings("", "", 0)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if level != "strict" || minSpeech != 0.8 {
		t.Fatalf("expected configured values, got %q %v", level, minSpeech)
	}

	level, minSpeech, err = analyzeSettings("", "relaxed", 1.5)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if level != "relaxed" || minSpeech != 1.5 {
		t.Fatalf("expected flag values, got %q %v", level, minSpeech)
	}
}

func TestPrintReply(t *testing.T) {
	var out bytes.Buffer
	printReply(&out, protocol.ControlReply{OK: true, State: "idle", LastTranscript: "CPU"})
	if out.String() != "state: idle\nlast transcript: CPU\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
