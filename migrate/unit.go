// Package migrate defines migration units and the ordered registry the
// runner executes them from.
package migrate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/eoty-platform/eoty-db/dbx"
)

// TxMode declares the atomicity contract between a unit and the runner.
type TxMode int

const (
	// TxWrap runs the whole apply or revert inside a single transaction the
	// runner opens, together with the ledger write. The default.
	TxWrap TxMode = iota
	// TxOwn means the unit manages its own transactions; the runner records
	// the ledger row in a small separate transaction afterwards.
	TxOwn
	// TxNone runs the unit outside any transaction, for DDL the engine
	// cannot transact. The unit must be safe to re-run over partial effects.
	TxNone
)

func (m TxMode) String() string {
	switch m {
	case TxWrap:
		return "wrap"
	case TxOwn:
		return "own"
	case TxNone:
		return "none"
	}
	return "unknown"
}

// Action is one direction of a unit, given the adapter it must run against.
type Action func(ctx context.Context, a dbx.Adapter) error

// Unit is the atomic unit of schema change. A nil Revert marks the unit
// irreversible: migrating down past it fails.
type Unit struct {
	// ID orders the unit within the registry and keys its ledger entry.
	// Immutable once recorded.
	ID string
	// Seq breaks ordering ties between units whose IDs compare equal under
	// the primary ordering rule.
	Seq int
	// Apply transitions the schema forward. Required.
	Apply Action
	// Revert is the inverse of Apply, or nil.
	Revert Action
	// TxMode defaults to TxWrap.
	TxMode TxMode
	// Checksum of the unit's source at registration time, if known.
	Checksum string
	// Notes is free-form markdown shown by the status command.
	Notes string
}

// Reversible reports whether the unit declares an inverse.
func (u *Unit) Reversible() bool { return u.Revert != nil }

// Checksum computes the ledger checksum for a source text.
func Checksum(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
