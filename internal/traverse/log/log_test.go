package log

import (
	"context"
	"log/slog"
	"testing"
)

func TestRecoverPanic(t *testing.T) {
	cleaned := false
	func() {
		defer RecoverPanic("worker", func() { cleaned = true })
		panic("boom")
	}()
	if !cleaned {
		t.Error("cleanup not run after panic")
	}
}

func TestRecoverPanicNoPanic(t *testing.T) {
	cleaned := false
	func() {
		defer RecoverPanic("worker", func() { cleaned = true })
	}()
	if cleaned {
		t.Error("cleanup run without a panic")
	}
}

func TestSetup(t *testing.T) {
	t.Setenv("TRAVERSE_LOG_TO_FILE", "")
	lg := Setup(true)
	if lg == nil || !Initialized() {
		t.Fatal("Setup did not initialize")
	}
	if Setup(false) != lg {
		t.Error("second Setup replaced the logger")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("slog default does not pass debug records")
	}
}
