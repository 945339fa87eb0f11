package config

import (
	"testing"
	"time"
)

func TestDurationFallback(t *testing.T) {
	t.Setenv(EnvPollInterval, "")
	if got := Duration(EnvPollInterval, 750*time.Millisecond); got != 750*time.Millisecond {
		t.Fatalf("expected fallback, got %s", got)
	}
	t.Setenv(EnvPollInterval, "1s")
	if got := Duration(EnvPollInterval, 750*time.Millisecond); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	t.Setenv(EnvPollInterval, "-5s")
	if got := Duration(EnvPollInterval, 750*time.Millisecond); got != 750*time.Millisecond {
		t.Fatalf("negative duration should fall back, got %s", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv(EnvDisableJournal, "yes")
	if !Bool(EnvDisableJournal, false) {
		t.Fatal("expected true")
	}
	t.Setenv(EnvDisableJournal, "garbage")
	if Bool(EnvDisableJournal, false) {
		t.Fatal("invalid bool should fall back")
	}
	t.Setenv(EnvConfirmPolls, "3")
	if got := Int(EnvConfirmPolls, 1); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	t.Setenv(EnvConfirmPolls, "x")
	if got := Int(EnvConfirmPolls, 1); got != 1 {
		t.Fatalf("expected fallback, got %d", got)
	}
}
