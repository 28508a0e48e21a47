package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitSetsGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Fatalf("GlobalLevel() = %v, want WarnLevel", zerolog.GlobalLevel())
	}
}

func TestInitDefaultsToInfoForUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "not-a-level", Output: &buf})
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("GlobalLevel() = %v, want InfoLevel", zerolog.GlobalLevel())
	}
}

func TestNewTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	logger := New("storage")
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"storage"`) {
		t.Fatalf("expected component tag in output, got %q", buf.String())
	}
}

func TestInitPrettyUsesConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Pretty: true, Output: &buf})
	New("x").Info().Msg("pretty output")
	if strings.Contains(buf.String(), `{"level"`) {
		t.Fatal("pretty mode should not emit raw JSON")
	}
}
