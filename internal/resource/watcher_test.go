package resource

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingForgetter struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingForgetter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recordingForgetter) forgotten() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestAssetWatcherForgetsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sun_model.glb")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, glb(2, nil), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recordingForgetter{}
	w := NewAssetWatcher(rec, []string{path, "https://example.org/remote.glb"}, testLogger())
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watcher register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(other, []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, glb(2, []byte("new")), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.forgotten()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	keys := rec.forgotten()
	if len(keys) == 0 {
		t.Fatal("watcher did not forget the changed asset")
	}
	for _, k := range keys {
		if k != path {
			t.Errorf("forgot unexpected key %q", k)
		}
	}
}

func TestAssetWatcherNoLocalPaths(t *testing.T) {
	w := NewAssetWatcher(&recordingForgetter{}, []string{"https://example.org/sun.glb"}, testLogger())
	if err := w.Run(context.Background()); err != nil {
		t.Errorf("Run with no local paths = %v, want nil", err)
	}
}
