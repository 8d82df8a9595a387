// Package daemon implements escrowd's accept/session loop: one rendezvous
// listener, one accepted client at a time, dispatching each request against
// an internal/store.Store and replying per the wire protocol in
// internal/wire. Grounded in original_source/escrow.c's escrowd_init /
// escrowd_loop / escrowd_fini, and in the teacher's signal-driven
// lifecycle (cmd/ublk-mem/main.go) for SIGUSR1/SIGINT/SIGTERM handling.
package daemon

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/kdalton/escrowd/internal/constants"
	"github.com/kdalton/escrowd/internal/logging"
	"github.com/kdalton/escrowd/internal/metrics"
	"github.com/kdalton/escrowd/internal/store"
	"github.com/kdalton/escrowd/internal/transport"
	"github.com/kdalton/escrowd/internal/wire"
)

// Options configures a Daemon.
type Options struct {
	// NrTags is the fixed number of tags the store manages.
	NrTags int
	// Verbose logs every decoded request and its reply opcode at Debug
	// level, mirroring escrow.c's mprint-on-every-message tracing.
	Verbose bool
	// Force unlinks an existing rendezvous socket before bind, rather
	// than failing if the path is already in use.
	Force bool
	// Logger is used for all daemon diagnostics. Defaults to
	// logging.Default() if nil.
	Logger *logging.Logger
	// Metrics receives operational counters. Defaults to a fresh private
	// registry (metrics.New()) if nil.
	Metrics *metrics.Metrics
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.NrTags <= 0 {
		out.NrTags = constants.DefaultTags
	}
	if out.Logger == nil {
		out.Logger = logging.Default()
	}
	if out.Metrics == nil {
		out.Metrics = metrics.New()
	}
	return &out
}

// Daemon owns the rendezvous listener and the tag store for one escrowd
// instance.
type Daemon struct {
	path     string
	listener *net.UnixListener
	store    *store.Store
	opts     *Options

	closeOnce sync.Once
}

// New creates the rendezvous socket at path and returns a Daemon ready for
// Serve. Mode is forced to rw------- (owner read/write only) regardless of
// the process umask, matching escrow.c's umask(0777 & ~(S_IRUSR|S_IWUSR))
// bracket around bind().
func New(path string, opts Options) (*Daemon, error) {
	o := opts.withDefaults()

	if o.Force {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, newStartupError("remove existing rendezvous path", err)
		}
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, newStartupError("resolve rendezvous path", err)
	}
	// sun_path is conventionally capped around 108 bytes on Linux; Go's
	// bind surfaces this as a generic "invalid argument" otherwise, so
	// check explicitly for a clearer startup error.
	if len(addr.Name) >= maxSunPathLen {
		return nil, newStartupError("rendezvous path too long", syscall.EINVAL)
	}

	oldMask := syscall.Umask(0177)
	listener, err := net.ListenUnix("unix", addr)
	syscall.Umask(oldMask)
	if err != nil {
		return nil, newStartupError("listen on rendezvous socket", err)
	}

	o.Logger.Infof("listening on %q", path)
	return &Daemon{
		path:     path,
		listener: listener,
		store:    store.New(o.NrTags),
		opts:     o,
	}, nil
}

const maxSunPathLen = 108

// Serve runs the outer accept loop forever: accept exactly one client, run
// its session to completion, close it, and loop. It returns only when the
// listener is closed (via Shutdown) or hits an unrecoverable accept
// error.
func (d *Daemon) Serve() error {
	for {
		conn, err := d.listener.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return newStartupError("accept", err)
		}
		d.opts.Metrics.Sessions.Inc()
		d.runSession(conn)
	}
}

// runSession drives the inner request/reply loop for one accepted client,
// per spec: receive, dispatch, reply, repeat until the peer disconnects or
// a transport error occurs.
func (d *Daemon) runSession(conn *net.UnixConn) {
	defer conn.Close()

	start := time.Now()
	defer func() {
		d.opts.Metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}()

	for {
		msg, fd, err := transport.Recv(conn)
		if err != nil {
			if errors.Is(err, transport.ErrPeerClosed) || errors.Is(err, io.EOF) {
				return
			}
			if transport.IsProtocolViolation(err) {
				d.opts.Logger.Warn("protocol violation", "err", err)
				d.opts.Metrics.Errors.WithLabelValues("UNKNOWN").Inc()
				if sendErr := transport.Send(conn, errReply(rcEPROTO, "Malformed request."), -1); sendErr != nil {
					d.opts.Logger.Warn("session send failed", "err", sendErr)
					return
				}
				continue
			}
			d.opts.Logger.Warn("session recv failed", "err", err)
			return
		}
		if d.opts.Verbose {
			d.opts.Logger.Debugf("recv: %s", describeMessage(msg, fd))
		}

		reply, replyFD, err := d.dispatch(msg, fd)
		if err != nil {
			d.opts.Logger.Warn("session send failed", "err", err)
			return
		}
		if d.opts.Verbose {
			d.opts.Logger.Debugf("send: %s", describeMessage(reply, replyFD))
		}
		if err := transport.Send(conn, reply, replyFD); err != nil {
			d.opts.Logger.Warn("session send failed", "err", err)
			return
		}
	}
}

// dispatch validates and applies one request, returning the message to
// send back (and its carried fd, or -1) or a transport-level error that
// should terminate the session. Protocol- and validation-level failures
// are never returned as Go errors here — they become REP frames, per
// spec.md §7's propagation policy.
func (d *Daemon) dispatch(msg wire.Message, fd int) (wire.Message, int, error) {
	switch m := msg.(type) {
	case wire.Add:
		return d.handleAdd(m, fd), -1, nil
	case wire.Del:
		return d.handleDel(m, fd), -1, nil
	case wire.TagQuery:
		return d.handleTag(m, fd)
	case wire.Get:
		return d.handleGet(m, fd)
	default:
		d.opts.Metrics.Errors.WithLabelValues(msg.Opcode().String()).Inc()
		return errReply(rcEPROTO, "Unexpected message type."), -1, nil
	}
}

func (d *Daemon) validLocation(tag int16, idx int32) bool {
	return tag >= 0 && int(tag) < d.opts.NrTags && idx >= 0 && idx < constants.MaxIndex
}

func (d *Daemon) handleAdd(m wire.Add, fd int) wire.Message {
	// Ufd is opaque client-supplied metadata (e.g. the caller's own fd
	// number, echoed back verbatim by GET); it is independent of fd, the
	// real descriptor conveyed via ancillary data, which may legitimately
	// be -1 for a payload-only entry (original_source/escrow.h). Ufd itself
	// is still validated unconditionally per spec.md §4.3.
	if !d.validLocation(m.Tag, m.Idx) || m.Ufd < 0 || len(m.Data) > constants.MaxPayload {
		d.opts.Metrics.Errors.WithLabelValues("ADD").Inc()
		return errReply(rcEINVAL, "Wrong ADD request.")
	}

	t, _ := d.store.Tag(int(m.Tag))
	slot := &store.Slot{FD: store.NewOwnedFD(fd), Ufd: m.Ufd, Data: m.Data}
	if err := t.Put(m.Idx, slot); err != nil {
		d.opts.Logger.Error("closing overwritten slot", "err", err)
	}

	d.opts.Metrics.Adds.Inc()
	d.opts.Metrics.PayloadBytes.Add(float64(len(m.Data)))
	return okReply()
}

func (d *Daemon) handleDel(m wire.Del, fd int) wire.Message {
	if !d.validLocation(m.Tag, m.Idx) {
		d.opts.Metrics.Errors.WithLabelValues("DEL").Inc()
		return errReply(rcEINVAL, "Wrong DEL request.")
	}
	if fd != -1 {
		d.opts.Metrics.Errors.WithLabelValues("DEL").Inc()
		return errReply(rcEINVAL, "Descriptor present in a DEL request.")
	}

	t, _ := d.store.Tag(int(m.Tag))
	found, err := t.Delete(m.Idx)
	if err != nil {
		d.opts.Logger.Error("closing deleted slot", "err", err)
	}
	if !found {
		d.opts.Metrics.Errors.WithLabelValues("DEL").Inc()
		return errReply(rcEINVAL, "Non-existent index in DEL request.")
	}

	d.opts.Metrics.Dels.Inc()
	return okReply()
}

func (d *Daemon) handleTag(m wire.TagQuery, fd int) (wire.Message, int, error) {
	if !d.validLocation(m.Tag, 0) {
		d.opts.Metrics.Errors.WithLabelValues("TAG").Inc()
		return errReply(rcEINVAL, "Wrong TAG request."), -1, nil
	}
	if fd != -1 {
		d.opts.Metrics.Errors.WithLabelValues("TAG").Inc()
		return errReply(rcEINVAL, "Descriptor present in a TAG request."), -1, nil
	}

	t, _ := d.store.Tag(int(m.Tag))
	nr, total := t.Stats()
	d.opts.Metrics.Tags.Inc()
	return wire.Inf{Nr: nr, Total: total}, -1, nil
}

func (d *Daemon) handleGet(m wire.Get, fd int) (wire.Message, int, error) {
	if !d.validLocation(m.Tag, m.Idx) {
		d.opts.Metrics.Errors.WithLabelValues("GET").Inc()
		return errReply(rcEINVAL, "Wrong GET request."), -1, nil
	}
	if fd != -1 {
		d.opts.Metrics.Errors.WithLabelValues("GET").Inc()
		return errReply(rcEINVAL, "Descriptor present in a GET request."), -1, nil
	}

	t, _ := d.store.Tag(int(m.Tag))
	slot := t.Get(m.Idx)
	if slot == nil {
		d.opts.Metrics.Errors.WithLabelValues("GET").Inc()
		return errReply(rcENOENT, "Non-existent index in a GET request."), -1, nil
	}

	d.opts.Metrics.Gets.Inc()
	reply := wire.Add{Tag: m.Tag, Idx: m.Idx, Ufd: slot.Ufd, Data: slot.Data}
	return reply, slot.FD.FD(), nil
}

// Shutdown closes the rendezvous listener (unblocking Serve's Accept) and
// tears down the store, unlinking the rendezvous path. Any session already
// in progress is allowed to run to completion on its own goroutine.
func (d *Daemon) Shutdown() error {
	var err error
	d.closeOnce.Do(func() {
		if cerr := d.listener.Close(); cerr != nil {
			err = cerr
		}
		if serr := d.store.Destroy(); serr != nil {
			d.opts.Logger.Error("store teardown", "err", serr)
		}
		if uerr := os.Remove(d.path); uerr != nil && !os.IsNotExist(uerr) {
			d.opts.Logger.Warn("unlink rendezvous path", "err", uerr)
		}
	})
	return err
}

// Metrics returns the daemon's metrics instance, for wiring a SIGUSR1
// dump handler in cmd/escrowd.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.opts.Metrics
}

func describeMessage(m wire.Message, fd int) string {
	return m.Opcode().String()
}
