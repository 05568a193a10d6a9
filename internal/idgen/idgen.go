// Package idgen generates and parses the 128-bit identifiers used
// throughout the domain model.
package idgen

import "github.com/pmcore/pmcored/internal/types"

// New returns a fresh random identifier.
func New() types.ID { return types.NewID() }

// Parse parses a canonical textual UUID.
func Parse(s string) (types.ID, error) { return types.ParseID(s) }
