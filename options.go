package escrow

// Flags configures Open, mirroring the original library's ESCROW_* bits
// (original_source/escrow.h).
type Flags uint32

const (
	// FlagCreate is accepted for source compatibility but is a no-op:
	// spawn-on-demand is always attempted when no daemon is listening
	// (spec.md §9, "ESCROW_CREAT... this spec makes spawn-on-demand the
	// default, treating the flag as a no-op").
	FlagCreate Flags = 1 << iota
	// FlagVerbose asks a freshly spawned daemon to log every request and
	// reply (passed through as -v).
	FlagVerbose
	// FlagForce asks a freshly spawned daemon to unlink a pre-existing
	// rendezvous path before binding (passed through as -f).
	FlagForce
)
