package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateSQLMigration writes an empty goose migration named after name into dir
// and returns its path. The version is the current UTC second, bumped past the
// newest existing version so goose keeps applying files in creation order.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeMigrationName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	existing, err := listMigrations(dir)
	if err != nil {
		return "", err
	}
	version := now
	for _, f := range existing {
		if f.name == safe {
			return "", fmt.Errorf("migration name %q already used by %s", safe, filepath.Base(f.path))
		}
	}
	if n := len(existing); n > 0 {
		latest, err := time.Parse(versionLayout, existing[n-1].version)
		if err != nil {
			return "", fmt.Errorf("parse version of %s: %w", filepath.Base(existing[n-1].path), err)
		}
		if !version.After(latest) {
			version = latest.Add(time.Second)
		}
	}

	fullpath := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), safe))
	body := strings.Join([]string{
		directiveUp,
		directiveStatementBegin,
		"-- " + safe,
		directiveStatementEnd,
		"",
		directiveDown,
		directiveStatementBegin,
		"-- rollback " + safe,
		directiveStatementEnd,
		"",
	}, "\n")
	f, err := os.OpenFile(fullpath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", fullpath, err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write migration %q: %w", fullpath, err)
	}
	return fullpath, nil
}

func sanitizeMigrationName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
