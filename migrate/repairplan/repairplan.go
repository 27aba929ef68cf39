// Package repairplan parses repair plan files. A plan is a list of ledger
// adjustments applied without running any apply/revert action, used to
// reconcile the ledger with out-of-band schema edits:
//
//	-- comments start with two dashes
//	mark 0004_courses batch 2
//	unmark 0005_lessons
//
// "mark" inserts a ledger row for a unit the database already reflects;
// "unmark" deletes a row whose schema effect was undone by hand.
package repairplan

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Op is one ledger adjustment.
type Op struct {
	// Mark is true for "mark", false for "unmark".
	Mark bool
	// UnitID is the migration unit the adjustment targets.
	UnitID string
	// Batch is the batch number for a mark, 0 to use the next batch.
	Batch int
}

// Plan is an ordered list of adjustments.
type Plan struct {
	Ops []Op
}

type rawPlan struct {
	Stmts []*rawStmt `parser:"@@*"`
}

type rawStmt struct {
	Verb  string `parser:"@('mark' | 'unmark')"`
	Unit  string `parser:"@Ident"`
	Batch *int   `parser:"('batch' @Ident)?"`
}

// Unit ids mix digits and letters ("0011_moderation"), so a single Ident
// token class covers ids and batch numbers alike; batch values are checked
// numerically when captured.
var planLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `\b(mark|unmark|batch)\b`},
	{Name: "Ident", Pattern: `[A-Za-z0-9][\w-]*`},
	{Name: "Comment", Pattern: `--[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var parser = participle.MustBuild[rawPlan](
	participle.Lexer(planLexer),
	participle.Elide("Whitespace", "Comment"),
)

// Parse reads a plan from r. filename is used in error positions.
func Parse(filename string, r io.Reader) (*Plan, error) {
	raw, err := parser.Parse(filename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repair plan: %w", err)
	}
	plan := &Plan{}
	for _, s := range raw.Stmts {
		op := Op{Mark: s.Verb == "mark", UnitID: s.Unit}
		if s.Batch != nil {
			if !op.Mark {
				return nil, fmt.Errorf("unmark %s: batch is only valid on mark", s.Unit)
			}
			op.Batch = *s.Batch
		}
		plan.Ops = append(plan.Ops, op)
	}
	return plan, nil
}

// ParseString parses a plan from a string.
func ParseString(filename, input string) (*Plan, error) {
	return Parse(filename, strings.NewReader(input))
}
