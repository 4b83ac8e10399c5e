package logging

import (
	"strings"
	"testing"
)

func TestSessionIDIsStableWithinRun(t *testing.T) {
	a, err := NewLogger("test-a")
	if err != nil {
		t.Logf("File logging unavailable, using fallback: %v", err)
	}
	defer a.Close()

	b, err := NewLogger("test-b")
	if err != nil {
		t.Logf("File logging unavailable, using fallback: %v", err)
	}
	defer b.Close()

	if a.SessionID() != b.SessionID() {
		t.Errorf("Expected shared session ID, got %s and %s", a.SessionID(), b.SessionID())
	}
	if a.SessionID() == "" {
		t.Error("Expected non-empty session ID")
	}
}

func TestLogPathNamesSession(t *testing.T) {
	l, err := NewLogger("test")
	if err != nil {
		t.Skipf("File logging unavailable: %v", err)
	}
	defer l.Close()

	if !strings.Contains(l.LogPath(), l.SessionID()) {
		t.Errorf("Expected log path %q to contain session ID %q", l.LogPath(), l.SessionID())
	}
	l.Infof("store run %d", 1)
	l.Warnf("divergence at %s", "00 00 00 00 00 01")
}

func TestCloseIsIdempotent(t *testing.T) {
	l, _ := NewLogger("test")
	if err := l.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}
