package escrow

import "github.com/kdalton/escrowd/internal/constants"

// Re-exported limits and defaults for public API callers.
const (
	MaxPayload   = constants.MaxPayload
	MaxReply     = constants.MaxReply
	MaxIndex     = constants.MaxIndex
	DefaultTags  = constants.DefaultTags
)
