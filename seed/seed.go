// Package seed populates baseline data after migrations: roles,
// permissions, chapters, default users, and onboarding content. Seed units
// keep no ledger; each one is internally idempotent and the whole set can
// be re-run to the same final state.
package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/internal/debug"
)

// Environment tags the deployment the seeder runs against. Only Production
// is behaviorally distinguished: it gates destructive units.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
	Test        Environment = "test"
)

// ParseEnvironment normalizes an environment tag from configuration.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case Development, Staging, Production, Test:
		return Environment(strings.ToLower(strings.TrimSpace(s))), nil
	case "":
		return Development, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// ErrProductionRefused is returned when a destructive unit is reached in
// production without the force flag.
var ErrProductionRefused = errors.New("refusing destructive seed in production")

// Unit is one idempotent seeding step.
type Unit struct {
	// Name orders the unit; names sort lexicographically.
	Name string
	// Destructive units are refused in production unless forced. Inserting
	// default users with known credentials counts as destructive.
	Destructive bool
	// Run performs the seeding. It must check for existing rows and upsert
	// rather than duplicate.
	Run func(ctx context.Context, a dbx.Adapter) error
}

// Options configures a single Run invocation. No process-wide state is
// consulted.
type Options struct {
	Environment Environment
	// Force runs destructive units even in production.
	Force bool
}

// Seeder runs seed units in name order.
type Seeder struct {
	db    *dbx.DB
	units []*Unit
}

// New returns a seeder over the given units. The unit list is sorted by
// name and not modified afterwards.
func New(db *dbx.DB, units []*Unit) *Seeder {
	sorted := make([]*Unit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Seeder{db: db, units: sorted}
}

// Run executes every unit in order. A destructive unit in production stops
// the run with ErrProductionRefused unless opts.Force is set.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	for _, u := range s.units {
		if err := ctx.Err(); err != nil {
			return err
		}
		if u.Destructive && opts.Environment == Production && !opts.Force {
			return fmt.Errorf("%w: %s", ErrProductionRefused, u.Name)
		}
		debug.Debug("running seed unit", "name", u.Name)
		if err := u.Run(ctx, s.db); err != nil {
			return fmt.Errorf("seed %s failed: %w", u.Name, err)
		}
	}
	return nil
}

// Names returns the execution order, mostly for status output and tests.
func (s *Seeder) Names() []string {
	names := make([]string, len(s.units))
	for i, u := range s.units {
		names[i] = u.Name
	}
	return names
}
