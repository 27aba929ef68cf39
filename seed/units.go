package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
)

// Units returns the platform's baseline seed corpus.
func Units() []*Unit {
	return []*Unit{
		{Name: "001_roles", Run: seedRoles},
		{Name: "002_permissions", Run: seedPermissions},
		{Name: "003_role_permissions", Run: seedRolePermissions},
		{Name: "004_default_users", Destructive: true, Run: seedDefaultUsers},
		{Name: "005_onboarding_course", Run: seedOnboardingCourse},
	}
}

var defaultRoles = []struct {
	Key  string
	Name string
}{
	{"admin", "Administrator"},
	{"moderator", "Moderator"},
	{"teacher", "Teacher"},
	{"student", "Student"},
}

var defaultPermissions = []struct {
	Key         string
	Description string
}{
	{"course.manage", "Create, edit and archive courses"},
	{"lesson.manage", "Create and edit lessons and videos"},
	{"quiz.manage", "Create and edit quizzes"},
	{"forum.moderate", "Hide posts and sanction forum users"},
	{"user.manage", "Manage user accounts and roles"},
	{"badge.award", "Award badges manually"},
	{"notification.broadcast", "Send platform-wide notifications"},
}

// rolePermissionKeys maps role key to the permission keys it carries.
// Grants resolve by key lookup, never by positional id.
var rolePermissionKeys = map[string][]string{
	"admin": {
		"course.manage", "lesson.manage", "quiz.manage", "forum.moderate",
		"user.manage", "badge.award", "notification.broadcast",
	},
	"moderator": {"forum.moderate", "badge.award"},
	"teacher":   {"course.manage", "lesson.manage", "quiz.manage"},
}

func seedRoles(ctx context.Context, a dbx.Adapter) error {
	for _, r := range defaultRoles {
		if err := upsertByKey(ctx, a, "roles", "key", r.Key, "name", r.Name); err != nil {
			return err
		}
	}
	return nil
}

func seedPermissions(ctx context.Context, a dbx.Adapter) error {
	for _, p := range defaultPermissions {
		if err := upsertByKey(ctx, a, "permissions", "key", p.Key, "description", p.Description); err != nil {
			return err
		}
	}
	return nil
}

func seedRolePermissions(ctx context.Context, a dbx.Adapter) error {
	p := a.Provider()
	for roleKey, permKeys := range rolePermissionKeys {
		roleID, ok, err := lookupID(ctx, a, "roles", "key", roleKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("role %q not seeded", roleKey)
		}
		for _, permKey := range permKeys {
			permID, ok, err := lookupID(ctx, a, "permissions", "key", permKey)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("permission %q not seeded", permKey)
			}
			exists, err := rowExists(ctx, a, fmt.Sprintf(
				"SELECT 1 FROM role_permissions WHERE role_id = %s AND permission_id = %s",
				p.Placeholder(1), p.Placeholder(2)), roleID, permID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			_, err = a.Exec(ctx, fmt.Sprintf(
				"INSERT INTO role_permissions (role_id, permission_id) VALUES (%s, %s)",
				p.Placeholder(1), p.Placeholder(2)), roleID, permID)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// seedDefaultUsers inserts the bootstrap admin account. The password hash
// is a placeholder forced to reset on first login; hashing itself is not
// this layer's concern.
func seedDefaultUsers(ctx context.Context, a dbx.Adapter) error {
	p := a.Provider()
	const adminEmail = "admin@eoty.local"
	exists, err := rowExists(ctx, a, fmt.Sprintf(
		"SELECT 1 FROM users WHERE email = %s", p.Placeholder(1)), adminEmail)
	if err != nil {
		return err
	}
	if !exists {
		_, err = a.Exec(ctx, fmt.Sprintf(`
			INSERT INTO users (email, display_name, password_hash, email_verified)
			VALUES (%s, %s, %s, %s)`,
			p.Placeholder(1), p.Placeholder(2), p.Placeholder(3), p.Placeholder(4)),
			adminEmail, "EOTY Admin", "!reset-required", boolArg(p, true))
		if err != nil {
			return err
		}
	}
	adminRoleID, ok, err := lookupID(ctx, a, "roles", "key", "admin")
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("admin role not seeded")
	}
	userID, ok, err := lookupID(ctx, a, "users", "email", adminEmail)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("admin user missing after insert")
	}
	granted, err := rowExists(ctx, a, fmt.Sprintf(
		"SELECT 1 FROM user_roles WHERE user_id = %s AND role_id = %s",
		p.Placeholder(1), p.Placeholder(2)), userID, adminRoleID)
	if err != nil {
		return err
	}
	if !granted {
		_, err = a.Exec(ctx, fmt.Sprintf(
			"INSERT INTO user_roles (user_id, role_id) VALUES (%s, %s)",
			p.Placeholder(1), p.Placeholder(2)), userID, adminRoleID)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedOnboardingCourse(ctx context.Context, a dbx.Adapter) error {
	p := a.Provider()
	const slug = "welcome-to-eoty"
	if err := upsertByKey(ctx, a, "courses", "slug", slug, "title", "Welcome to EOTY"); err != nil {
		return err
	}
	courseID, ok, err := lookupID(ctx, a, "courses", "slug", slug)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("onboarding course missing after upsert")
	}
	chapters := []struct {
		Position int
		Title    string
	}{
		{1, "Getting started"},
		{2, "Your first course"},
		{3, "Community guidelines"},
	}
	for _, ch := range chapters {
		exists, err := rowExists(ctx, a, fmt.Sprintf(
			"SELECT 1 FROM chapters WHERE course_id = %s AND position = %s",
			p.Placeholder(1), p.Placeholder(2)), courseID, ch.Position)
		if err != nil {
			return err
		}
		if exists {
			_, err = a.Exec(ctx, fmt.Sprintf(
				"UPDATE chapters SET title = %s WHERE course_id = %s AND position = %s",
				p.Placeholder(1), p.Placeholder(2), p.Placeholder(3)),
				ch.Title, courseID, ch.Position)
		} else {
			_, err = a.Exec(ctx, fmt.Sprintf(
				"INSERT INTO chapters (course_id, position, title) VALUES (%s, %s, %s)",
				p.Placeholder(1), p.Placeholder(2), p.Placeholder(3)),
				courseID, ch.Position, ch.Title)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// upsertByKey inserts or updates a single-valued row identified by a
// natural key column.
func upsertByKey(ctx context.Context, a dbx.Adapter, table, keyCol, key, valCol, val string) error {
	p := a.Provider()
	exists, err := rowExists(ctx, a, fmt.Sprintf(
		"SELECT 1 FROM %s WHERE %s = %s",
		a.QuoteIdent(table), a.QuoteIdent(keyCol), p.Placeholder(1)), key)
	if err != nil {
		return err
	}
	if exists {
		_, err = a.Exec(ctx, fmt.Sprintf(
			"UPDATE %s SET %s = %s WHERE %s = %s",
			a.QuoteIdent(table), a.QuoteIdent(valCol), p.Placeholder(1),
			a.QuoteIdent(keyCol), p.Placeholder(2)), val, key)
		return err
	}
	_, err = a.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		a.QuoteIdent(table), a.QuoteIdent(keyCol), a.QuoteIdent(valCol),
		p.Placeholder(1), p.Placeholder(2)), key, val)
	return err
}

func lookupID(ctx context.Context, a dbx.Adapter, table, keyCol, key string) (int64, bool, error) {
	var id int64
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = %s",
		a.QuoteIdent(table), a.QuoteIdent(keyCol), a.Provider().Placeholder(1))
	err := a.QueryRow(ctx, query, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up %s.%s=%q: %w", table, keyCol, key, err)
	}
	return id, true, nil
}

func rowExists(ctx context.Context, a dbx.Adapter, query string, args ...any) (bool, error) {
	var one int
	err := a.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// boolArg maps a Go bool to the provider's boolean literal argument.
// SQLite stores integers; the drivers handle bools for the other two.
func boolArg(p dbx.Provider, b bool) any {
	if p == dbx.SQLite {
		if b {
			return 1
		}
		return 0
	}
	return b
}
