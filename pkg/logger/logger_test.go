package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dkwon/alpharank/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		wantLevel zerolog.Level
	}{
		{
			name:      "debug level",
			cfg:       &config.Config{Env: "development", LogLevel: "debug", LogFormat: "json"},
			wantLevel: zerolog.DebugLevel,
		},
		{
			name:      "info level",
			cfg:       &config.Config{Env: "production", LogLevel: "info", LogFormat: "json"},
			wantLevel: zerolog.InfoLevel,
		},
		{
			name:      "unknown level falls back to info",
			cfg:       &config.Config{Env: "production", LogLevel: "loud", LogFormat: "json"},
			wantLevel: zerolog.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(tt.cfg)
			if log == nil {
				t.Fatal("New() returned nil")
			}
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("expected level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := NewWriter(&buf)

	log.WithField("run_id", "run_20260101_120000").Info("run started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if entry["run_id"] != "run_20260101_120000" {
		t.Errorf("expected run_id field, got %v", entry["run_id"])
	}
	if entry["message"] != "run started" {
		t.Errorf("expected message 'run started', got %v", entry["message"])
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := NewWriter(&buf)

	log.WithFields(map[string]interface{}{
		"factor": "value_pe",
		"code":   "005930",
		"score":  1.25,
	}).Info("factor computed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if entry["factor"] != "value_pe" {
		t.Errorf("expected factor field, got %v", entry["factor"])
	}
	if entry["score"] != 1.25 {
		t.Errorf("expected score 1.25, got %v", entry["score"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := NewWriter(&buf)

	log.WithError(errors.New("provider unavailable")).Error("fetch failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if entry["error"] != "provider unavailable" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
}

func TestFormattedLogging(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log := NewWriter(&buf)

	log.Infof("fetched %d rows", 42)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["message"] != "fetched 42 rows" {
		t.Errorf("unexpected message: %v", entry["message"])
	}
}
