package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"segue/internal/analysis"
	"segue/internal/config"
	"segue/internal/testsupport"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	body := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[feature_store]
backend = "dir"
dir = %q
`, filepath.Join(root, "data"), filepath.Join(root, "logs"), filepath.Join(root, "features"))
	path := filepath.Join(root, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCommand(t, "config", "init", "-p", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("output does not name the target path: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if _, err := runCommand(t, "config", "init", "-p", target); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if _, err := runCommand(t, "config", "init", "-p", target); err == nil {
		t.Fatal("second init should refuse to overwrite")
	}
}

func TestAnalyzeCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)
	samples := testsupport.ChordPulses(t, []float64{261.63, 329.63, 392.00}, 120, 12, analysis.TargetSampleRate)
	clip := testsupport.WAVBytes(t, samples, analysis.TargetSampleRate, 1)
	wavPath := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(wavPath, clip, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	out, err := runCommand(t, "--config", cfgPath, "analyze", wavPath)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "BPM") || !strings.Contains(out, "8B") {
		t.Errorf("unexpected analyze output:\n%s", out)
	}
}

func TestAddAndQueueList(t *testing.T) {
	cfgPath := writeTestConfig(t)
	samples := testsupport.ChordPulses(t, []float64{261.63, 329.63, 392.00}, 120, 12, analysis.TargetSampleRate)
	clip := testsupport.WAVBytes(t, samples, analysis.TargetSampleRate, 1)
	wavPath := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(wavPath, clip, 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	out, err := runCommand(t, "--config", cfgPath, "add", wavPath, "--artist", "Test", "--title", "Clip")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "queued for analysis") {
		t.Errorf("unexpected add output: %q", out)
	}

	out, err = runCommand(t, "--config", cfgPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "queued") || !strings.Contains(out, "Test - Clip") {
		t.Errorf("unexpected queue list output:\n%s", out)
	}
}
