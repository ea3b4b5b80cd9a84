package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".wacrm", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestAppDBPath(t *testing.T) {
	got := AppDBPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "crm.db")) {
		t.Errorf("AppDBPath(test) = %q, want suffix sessions/test/crm.db", got)
	}
}

func TestMediaDir(t *testing.T) {
	got := MediaDir("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "media")) {
		t.Errorf("MediaDir(test) = %q, want suffix sessions/test/media", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}
