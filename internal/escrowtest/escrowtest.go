// Package escrowtest provides a throwaway escrowd instance for exercising
// the client API end to end, the same role the teacher's root-level
// testing.go (MockBackend) plays for go-ublk consumers: there it fakes a
// block-device backend, here it runs a real daemon bound to a temp socket.
package escrowtest

import (
	"path/filepath"
	"testing"

	"github.com/kdalton/escrowd/internal/daemon"
)

// StartDaemon binds a daemon to a fresh socket under t.TempDir(), serves it
// on a background goroutine, and returns its rendezvous path. The daemon is
// torn down automatically via t.Cleanup.
func StartDaemon(t *testing.T, nrTags int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "escrow.sock")
	d, err := daemon.New(path, daemon.Options{NrTags: nrTags})
	if err != nil {
		t.Fatalf("escrowtest: start daemon: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.Serve(); err != nil {
			t.Logf("escrowtest: serve exited: %v", err)
		}
	}()

	t.Cleanup(func() {
		if err := d.Shutdown(); err != nil {
			t.Logf("escrowtest: shutdown: %v", err)
		}
		<-done
	})

	return path
}
