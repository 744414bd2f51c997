package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestLoggerReadsLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if lvl := Logger().GetLevel(); lvl != logrus.DebugLevel {
		t.Fatalf("level = %s, want debug", lvl)
	}

	t.Setenv("LOG_LEVEL", "loud")
	if lvl := Logger().GetLevel(); lvl != logrus.InfoLevel {
		t.Fatalf("level = %s, want info fallback", lvl)
	}
}

func TestConfigureCreatesLogDirectory(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "logs", "nested", "job.log")

	if err := Logger().Configure("info", "json", path, 7); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("log directory not created: %v", err)
	}
}

func TestConfigureLeavesLoggerUntouchedOnError(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	log := Logger()
	log.SetLevel(logrus.WarnLevel)

	if err := log.Configure("debug", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
	if log.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level changed to %s on failed configure", log.GetLevel())
	}
}

func TestReportCountsWarnAndError(t *testing.T) {
	ResetReport()
	log := Logger()
	log.SetOutput(io.Discard)

	log.WithComponent("fetch").Warn("slow")
	log.WithComponent("fetch").Warn("slower")
	log.WithComponent("store").Error("boom")
	log.WithFields(Fields{"x": 1}).Warn("no component")

	counts := Report()
	if got := counts["fetch"]; got.Warns != 2 || got.Errors != 0 {
		t.Fatalf("fetch counts = %+v", got)
	}
	if got := counts["store"]; got.Errors != 1 {
		t.Fatalf("store counts = %+v", got)
	}

	warns, errs := LogReport(log.WithComponent("report"))
	if warns != 2 || errs != 1 {
		t.Fatalf("totals = %d/%d, want 2/1", warns, errs)
	}

	ResetReport()
	if len(Report()) != 0 {
		t.Fatalf("report not reset")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "job.log")

	log := Logger()
	if err := log.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("test").WithRunID("r-1").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "run_id=r-1") {
		t.Fatalf("run_id missing from %q", data)
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if err := Logger().Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestIsWrapperFrame(t *testing.T) {
	cases := map[string]bool{
		"github.com/sirupsen/logrus.(*Entry).log":  true,
		"activeoi/logger.(*Entry).Warn":            true,
		"activeoi/internal/job.(*Runner).process":  false,
		"activeoi/loggerx.Do":                      false,
		"main.run":                                 false,
	}
	for fn, want := range cases {
		if got := isWrapperFrame(fn); got != want {
			t.Fatalf("isWrapperFrame(%q) = %v, want %v", fn, got, want)
		}
	}
}
