package inbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirectoryPollConsumesFiles(t *testing.T) {
	dir := t.TempDir()
	src, err := NewDirectory(dir)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a-receipt.jpg"), []byte("receipt-a"), 0644); err != nil {
		t.Fatal(err)
	}

	envs, err := src.Poll(t.Context())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(envs))
	}
	if envs[0].SourceRef != "file:a-receipt.jpg" || string(envs[0].Data) != "receipt-a" {
		t.Fatalf("unexpected envelope: %+v", envs[0])
	}

	if _, err := os.Stat(filepath.Join(dir, "consumed", "a-receipt.jpg")); err != nil {
		t.Fatalf("file not moved to consumed: %v", err)
	}

	envs, err = src.Poll(t.Context())
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if len(envs) != 0 {
		t.Fatalf("second poll redelivered %d envelopes", len(envs))
	}
}

// An unreadable entry must not swallow the rest of the batch. Readable files
// are still delivered and consumed; the error reports the bad entry.
func TestDirectoryPollSkipsUnreadableEntries(t *testing.T) {
	dir := t.TempDir()
	src, err := NewDirectory(dir)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a-receipt.jpg"), []byte("receipt-a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "does-not-exist"), filepath.Join(dir, "broken.jpg")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "z-receipt.jpg"), []byte("receipt-z"), 0644); err != nil {
		t.Fatal(err)
	}

	envs, err := src.Poll(t.Context())
	if err == nil {
		t.Fatal("want error for the unreadable entry")
	}
	if len(envs) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envs))
	}
	refs := map[string]bool{}
	for _, env := range envs {
		refs[env.SourceRef] = true
	}
	if !refs["file:a-receipt.jpg"] || !refs["file:z-receipt.jpg"] {
		t.Fatalf("readable files missing from batch: %v", refs)
	}

	for _, name := range []string{"a-receipt.jpg", "z-receipt.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, "consumed", name)); err != nil {
			t.Fatalf("%s not moved to consumed: %v", name, err)
		}
	}
}
