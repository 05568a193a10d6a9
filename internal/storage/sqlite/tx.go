package sqlite

import (
	"database/sql"

	"github.com/pmcore/pmcored/internal/storage"
)

// Tx wraps a single *sql.Conn pinned to an in-flight BEGIN IMMEDIATE
// transaction. It implements storage.Tx; every method issues its SQL
// against conn and returns a *types.Error on any domain-level failure.
type Tx struct {
	conn *sql.Conn
}

var _ storage.Tx = (*Tx)(nil)
