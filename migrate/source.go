package migrate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/eoty-platform/eoty-db/dbx"
)

// Directive prefix recognized on the first line of an .up.sql file, e.g.
//
//	-- eotydb:txmode none
const txModeDirective = "-- eotydb:txmode"

// LoadDir reads SQL migration pairs from a directory and registers them.
// Files are named NNNN_name.up.sql with an optional NNNN_name.down.sql
// companion; a missing down file marks the unit irreversible.
func LoadDir(fs afero.Fs, dir string, r *Registry) error {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations dir %s: %w", dir, err)
	}
	var names []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if strings.HasSuffix(info.Name(), ".up.sql") {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		id := strings.TrimSuffix(name, ".up.sql")
		upSQL, err := afero.ReadFile(fs, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		unit := &Unit{
			ID:       id,
			Apply:    sqlAction(string(upSQL)),
			TxMode:   parseTxMode(string(upSQL)),
			Checksum: Checksum(string(upSQL)),
		}
		downName := id + ".down.sql"
		if ok, _ := afero.Exists(fs, dir+"/"+downName); ok {
			downSQL, err := afero.ReadFile(fs, dir+"/"+downName)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", downName, err)
			}
			unit.Revert = sqlAction(string(downSQL))
		}
		if err := r.Add(unit); err != nil {
			return err
		}
	}
	return nil
}

// sqlAction executes each statement of a SQL script in order.
func sqlAction(script string) Action {
	return func(ctx context.Context, a dbx.Adapter) error {
		for _, stmt := range SplitStatements(script) {
			if _, err := a.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func parseTxMode(script string) TxMode {
	line := script
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, txModeDirective) {
		return TxWrap
	}
	switch strings.TrimSpace(strings.TrimPrefix(line, txModeDirective)) {
	case "own":
		return TxOwn
	case "none":
		return TxNone
	default:
		return TxWrap
	}
}

// SplitStatements splits a SQL script on statement-terminating semicolons,
// skipping string literals, quoted identifiers, and comments. Empty
// statements are dropped.
func SplitStatements(script string) []string {
	var (
		out   []string
		buf   strings.Builder
		depth int
	)
	flush := func() {
		s := strings.TrimSpace(buf.String())
		buf.Reset()
		if s != "" {
			out = append(out, s)
		}
	}
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			buf.WriteByte('\n')
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			depth = 1
			i += 2
			for i < len(script) && depth > 0 {
				if script[i] == '*' && i+1 < len(script) && script[i+1] == '/' {
					depth--
					i++
				}
				i++
			}
			i--
		case c == '\'' || c == '"' || c == '`':
			quote := c
			buf.WriteByte(c)
			i++
			for i < len(script) {
				buf.WriteByte(script[i])
				if script[i] == quote {
					// Doubled quote escapes itself.
					if i+1 < len(script) && script[i+1] == quote {
						i++
						buf.WriteByte(script[i])
					} else {
						break
					}
				}
				i++
			}
		case c == '$' && isDollarTag(script[i:]):
			// Dollar-quoted body, e.g. $$ ... $$ or $fn$ ... $fn$.
			tag := dollarTag(script[i:])
			end := strings.Index(script[i+len(tag):], tag)
			if end < 0 {
				buf.WriteString(script[i:])
				i = len(script)
				break
			}
			buf.WriteString(script[i : i+len(tag)+end+len(tag)])
			i += len(tag) + end + len(tag) - 1
		case c == ';':
			flush()
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return out
}

func isDollarTag(s string) bool {
	if len(s) < 2 || s[0] != '$' {
		return false
	}
	for i := 1; i < len(s); i++ {
		switch {
		case s[i] == '$':
			return true
		case (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') || s[i] == '_':
		default:
			return false
		}
	}
	return false
}

func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		if s[i] == '$' {
			return s[:i+1]
		}
	}
	return s
}
