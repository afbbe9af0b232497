package device_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcalder/wallcue/internal/device"
)

func TestNew_GeneratesIDOnFirstStart(t *testing.T) {
	dir := t.TempDir()

	d, err := device.New(dir, "auto")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if d.ID().IsZero() {
		t.Fatal("expected non-zero ID")
	}
	if len(d.ID().String()) != 26 {
		t.Errorf("ULID should be 26 chars, got %d: %s", len(d.ID().String()), d.ID())
	}
}

func TestNew_PersistsIDAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	d1, err := device.New(dir, "auto")
	if err != nil {
		t.Fatalf("first New() error: %v", err)
	}

	d2, err := device.New(dir, "auto")
	if err != nil {
		t.Fatalf("second New() error: %v", err)
	}

	if d1.ID() != d2.ID() {
		t.Errorf("ID changed across restarts: %s != %s", d1.ID(), d2.ID())
	}
}

func TestNew_IDStoredInDataDir(t *testing.T) {
	dir := t.TempDir()

	d, err := device.New(dir, "auto")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "device_id"))
	if err != nil {
		t.Fatalf("device_id file not found: %v", err)
	}

	persisted := strings.TrimSpace(string(data))
	if persisted != d.ID().String() {
		t.Errorf("persisted ID %q != returned ID %q", persisted, d.ID())
	}
}

func TestNew_ExplicitOverride(t *testing.T) {
	dir := t.TempDir()
	override := device.MustNewID()

	d, err := device.New(dir, override)
	if err != nil {
		t.Fatalf("New() with override error: %v", err)
	}

	if d.ID().String() != override {
		t.Errorf("expected override ID %s, got %s", override, d.ID())
	}
}

func TestNew_InvalidOverride_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := device.New(dir, "not-a-valid-ulid")
	if err == nil {
		t.Fatal("expected error for invalid ULID override")
	}
}

func TestNew_EmptyDataDir_ReturnsError(t *testing.T) {
	_, err := device.New("", "auto")
	if err == nil {
		t.Fatal("expected error for empty dataDir")
	}
}

func TestNew_CorruptIDFile_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device_id")
	if err := os.WriteFile(path, []byte("garbage-not-a-ulid\n"), 0o640); err != nil {
		t.Fatal(err)
	}

	_, err := device.New(dir, "auto")
	if err == nil {
		t.Fatal("expected error for corrupt device_id file")
	}
}

func TestMustNewID_UniqueAndMonotonic(t *testing.T) {
	ids := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := device.MustNewID()
		if ids[id] {
			t.Fatalf("duplicate ULID generated: %s", id)
		}
		ids[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ULIDs not monotonically increasing: %s then %s", prev, id)
		}
		prev = id
	}
}
