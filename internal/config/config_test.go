package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("POLL_SCHEDULE", "")
	t.Setenv("EXTRACT_SCHEDULE", "")
	t.Setenv("DOCAI_CLASSIFY_PROCESSOR", "")

	cfg := Load()
	if cfg.NATSSubject != "messages.found" {
		t.Fatalf("expected default subject messages.found, got %q", cfg.NATSSubject)
	}
	if cfg.PollSchedule != "@every 1m" {
		t.Fatalf("expected default poll schedule, got %q", cfg.PollSchedule)
	}
	if cfg.ExtractSchedule != "@every 10m" {
		t.Fatalf("expected default extract schedule, got %q", cfg.ExtractSchedule)
	}
	if cfg.DocAIClassifyProcessor != "classifier_generic" {
		t.Fatalf("expected default classify processor, got %q", cfg.DocAIClassifyProcessor)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("NATS_SUBJECT", "mail.events")
	t.Setenv("POLL_SCHEDULE", "@every 30s")
	t.Setenv("REPORT_DIR", "/tmp/reports")

	cfg := Load()
	if cfg.NATSSubject != "mail.events" {
		t.Fatalf("expected subject override, got %q", cfg.NATSSubject)
	}
	if cfg.PollSchedule != "@every 30s" {
		t.Fatalf("expected poll schedule override, got %q", cfg.PollSchedule)
	}
	if cfg.ReportDir != "/tmp/reports" {
		t.Fatalf("expected report dir override, got %q", cfg.ReportDir)
	}
}

func TestLoadProcessorMapMissingFileFallsBack(t *testing.T) {
	processors, err := LoadProcessorMap(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processors["invoice_generic"] != "invoice_generic" {
		t.Fatalf("expected built-in default for invoice_generic, got %q", processors["invoice_generic"])
	}
	if _, ok := processors["export_declaration_turkey_house"]; !ok {
		t.Fatal("expected built-in default for export_declaration_turkey_house")
	}
}

func TestLoadProcessorMapParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processors.yaml")
	content := "processors:\n  invoice_turkey: proc-123\n  bill_of_lading: proc-456\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	processors, err := LoadProcessorMap(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processors["invoice_turkey"] != "proc-123" {
		t.Fatalf("expected proc-123, got %q", processors["invoice_turkey"])
	}
	if processors["bill_of_lading"] != "proc-456" {
		t.Fatalf("expected proc-456, got %q", processors["bill_of_lading"])
	}
}

func TestLoadProcessorMapRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processors.yaml")
	if err := os.WriteFile(path, []byte("processors: {}\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := LoadProcessorMap(path); err == nil {
		t.Fatal("expected error for empty processor map")
	}
}
