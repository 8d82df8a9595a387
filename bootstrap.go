package escrow

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kdalton/escrowd/internal/constants"
)

// resolvePath returns path unchanged if non-empty, otherwise falls back to
// the ESCROW_PATH environment variable (spec.md §6). An empty result after
// that is a startup error: there is nowhere to dial or spawn.
func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv("ESCROW_PATH"); env != "" {
		return env, nil
	}
	return "", NewError("Open", ErrCodeInvalidArgument, "no rendezvous path given and ESCROW_PATH is unset")
}

// dialOrSpawn connects to an already-listening daemon at path, or spawns
// one on demand and waits for it to start listening, per spec.md §9's
// "spawn-on-demand is the default" resolution of ESCROW_CREAT. Spawning
// only happens for the "nobody is listening" conditions escrow_init_try
// checks for (original_source/escrow.c:683-691); any other dial failure is
// surfaced to the caller instead (spec.md §4.5).
func dialOrSpawn(path string, flags Flags, nrTags int) (*net.UnixConn, error) {
	conn, err := dial(path)
	if err == nil {
		return conn, nil
	}
	if !isNoListenerError(err) {
		return nil, WrapError("Open", err)
	}

	if err := spawn(path, flags, nrTags); err != nil {
		return nil, WrapError("Open", err)
	}

	if err := waitForSocket(path); err != nil {
		return nil, WrapError("Open", err)
	}

	conn, err = dial(path)
	if err != nil {
		return nil, WrapError("Open", err)
	}
	return conn, nil
}

func dial(path string) (*net.UnixConn, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	return net.DialUnix("unix", nil, addr)
}

// isNoListenerError reports whether err indicates nobody is bound to the
// rendezvous path yet, the set escrow_init_try spawns a daemon for:
// ENOENT (path missing), ECONNREFUSED (stale socket, nothing listening),
// ESHUTDOWN (peer shut down its end). EPIPE is included alongside
// ESHUTDOWN as the same "dead peer" condition on some platforms. Any other
// error (permission denied, too many open files, ...) is surfaced rather
// than papered over by spawning a daemon that will fail the same way.
func isNoListenerError(err error) bool {
	return errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ESHUTDOWN) ||
		errors.Is(err, syscall.EPIPE)
}

// spawn execs the escrowd binary as a detached child. Go cannot fork and
// keep running Go code in the child (no equivalent to the source's
// escrowd_fork), so this is the idiomatic substitute spec.md §9 and
// SPEC_FULL.md §4.5 call for: exec a separate binary, decoupled from the
// parent's process group via Setsid.
func spawn(path string, flags Flags, nrTags int) error {
	bin, err := escrowdBinary()
	if err != nil {
		return err
	}

	args := []string{"-t", strconv.Itoa(nrTags)}
	if flags&FlagVerbose != 0 {
		args = append(args, "-v")
	}
	if flags&FlagForce != 0 {
		args = append(args, "-f")
	}
	args = append(args, path)

	cmd := exec.Command(bin, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn escrowd: %w", err)
	}
	// The daemon outlives this process; we only needed to launch it.
	return cmd.Process.Release()
}

// escrowdBinary finds the escrowd executable: an explicit ESCROWD_PATH
// environment variable wins, otherwise it is looked up on PATH.
func escrowdBinary() (string, error) {
	if env := os.Getenv("ESCROWD_PATH"); env != "" {
		return env, nil
	}
	bin, err := exec.LookPath("escrowd")
	if err != nil {
		return "", fmt.Errorf("locate escrowd binary (set ESCROWD_PATH): %w", err)
	}
	return bin, nil
}

// waitForSocket blocks until path exists (or BootstrapTimeout elapses),
// preferring an fsnotify watch on the parent directory over a blind sleep
// (spec.md §9's critique of the source's one-shot sleep(1)). If the
// watcher cannot be set up, it falls back to a bounded-exponential-backoff
// poll.
func waitForSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return pollForSocket(path)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return pollForSocket(path)
	}

	deadline := time.After(constants.BootstrapTimeout)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return pollForSocket(path)
			}
			if event.Name == path && (event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return nil
			}
		case <-watcher.Errors:
			// Keep polling via Stat even if the watcher itself misbehaves.
		case <-deadline:
			return NewError("Open", ErrCodeStartup, "timed out waiting for spawned daemon's rendezvous socket")
		}
	}
}

// pollForSocket is the legacy fallback: bounded exponential backoff from
// 10ms to 200ms, capped by BootstrapTimeout overall.
func pollForSocket(path string) error {
	deadline := time.Now().Add(constants.BootstrapTimeout)
	delay := 10 * time.Millisecond
	const maxDelay = 200 * time.Millisecond

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return NewError("Open", ErrCodeStartup, "timed out waiting for spawned daemon's rendezvous socket")
		}
		time.Sleep(delay)
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
