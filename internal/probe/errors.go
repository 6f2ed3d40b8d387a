package probe

import "errors"

var (
	// ErrConfiguration reports invalid radius, orientation, step, AOI or
	// training parameters. The detector state is unchanged when it is returned.
	ErrConfiguration = errors.New("invalid detector configuration")

	// ErrFormat reports a persisted table that is malformed or was built for a
	// different configuration. A failed load leaves the current tables intact.
	ErrFormat = errors.New("invalid probe table format")
)
