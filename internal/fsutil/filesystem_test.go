package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_ReadAndStat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patient.cal")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var fsys FileSystem = OSFileSystem{}
	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(data) != 3 {
		t.Errorf("expected 3 bytes, got %d", len(data))
	}

	info, err := fsys.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 3 {
		t.Errorf("expected size 3, got %d", info.Size())
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	blob := []byte("calibration")
	if err := mfs.WriteFile("/etc/bedside/../bedside/user.cal", blob, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	blob[0] = 'X'

	data, err := mfs.ReadFile("/etc/bedside/user.cal")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "calibration" {
		t.Errorf("expected stored copy, got %q", data)
	}

	data[0] = 'Y'
	again, _ := mfs.ReadFile("/etc/bedside/user.cal")
	if string(again) != "calibration" {
		t.Errorf("ReadFile must return a copy, got %q", again)
	}

	info, err := mfs.Stat("/etc/bedside/user.cal")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name() != "user.cal" || info.Size() != int64(len("calibration")) || info.IsDir() {
		t.Errorf("unexpected stat: name=%s size=%d dir=%t", info.Name(), info.Size(), info.IsDir())
	}
	if info.Mode() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode())
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if _, err := mfs.ReadFile("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile: expected ErrNotExist, got %v", err)
	}
	if _, err := mfs.Stat("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat: expected ErrNotExist, got %v", err)
	}
	if err := mfs.Remove("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Remove: expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_Remove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.WriteFile("a.json", []byte("{}"), 0o644)

	if err := mfs.Remove("a.json"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := mfs.ReadFile("a.json"); err == nil {
		t.Error("expected file to be gone")
	}
}

func TestOrOS(t *testing.T) {
	if _, ok := OrOS(nil).(OSFileSystem); !ok {
		t.Error("nil should fall back to OSFileSystem")
	}
	mfs := NewMemoryFileSystem()
	if OrOS(mfs) != FileSystem(mfs) {
		t.Error("non-nil filesystem should be returned unchanged")
	}
}
