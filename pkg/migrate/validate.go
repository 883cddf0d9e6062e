package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	directiveUp             = "-- +goose Up"
	directiveDown           = "-- +goose Down"
	directiveStatementBegin = "-- +goose StatementBegin"
	directiveStatementEnd   = "-- +goose StatementEnd"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

type migrationFile struct {
	version string
	name    string
	path    string
}

// ValidateDir checks every SQL migration in dir and reports all problems at
// once: bad filenames, reused versions or names, and malformed goose sections.
func ValidateDir(dir string) error {
	files, errs := listMigrations(dir)
	versions := map[string]string{}
	names := map[string]string{}
	for _, f := range files {
		base := filepath.Base(f.path)
		if prev, ok := versions[f.version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", f.version, prev, base))
		}
		versions[f.version] = base
		if prev, ok := names[f.name]; ok {
			errs = multierr.Append(errs, fmt.Errorf("migration name %q reused by %q and %q", f.name, prev, base))
		}
		names[f.name] = base
		errs = multierr.Append(errs, validateSections(f.path))
	}
	return errs
}

// listMigrations returns the .sql files of dir ordered by version. Files that
// do not follow the YYYYMMDDHHMMSS_name.sql layout are an error.
func listMigrations(dir string) ([]migrationFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	var (
		files []migrationFile
		errs  error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name()))
			continue
		}
		files = append(files, migrationFile{version: m[1], name: m[2], path: filepath.Join(dir, e.Name())})
	}
	// os.ReadDir sorts by filename, which orders the fixed-width versions.
	return files, errs
}

// validateSections requires one Up section followed by one Down section, with
// StatementBegin/StatementEnd pairs that neither nest nor cross a section.
func validateSections(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	var (
		ups, downs  int
		inStatement bool
		lineNo      int
		errs        error
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		switch strings.TrimSpace(scanner.Text()) {
		case directiveUp:
			ups++
			if downs > 0 {
				errs = multierr.Append(errs, fmt.Errorf("migration %q: Up section after Down at line %d", name, lineNo))
			}
		case directiveDown:
			downs++
			if inStatement {
				errs = multierr.Append(errs, fmt.Errorf("migration %q: Down starts inside an open statement at line %d", name, lineNo))
			}
		case directiveStatementBegin:
			if inStatement {
				errs = multierr.Append(errs, fmt.Errorf("migration %q: nested StatementBegin at line %d", name, lineNo))
			}
			inStatement = true
		case directiveStatementEnd:
			if !inStatement {
				errs = multierr.Append(errs, fmt.Errorf("migration %q: StatementEnd without StatementBegin at line %d", name, lineNo))
			}
			inStatement = false
		}
	}
	if err := scanner.Err(); err != nil {
		return multierr.Append(errs, fmt.Errorf("scan %q: %w", name, err))
	}

	if ups != 1 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q needs exactly one %q, found %d", name, directiveUp, ups))
	}
	if downs != 1 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q needs exactly one %q, found %d", name, directiveDown, downs))
	}
	if inStatement {
		errs = multierr.Append(errs, fmt.Errorf("migration %q ends inside an open statement", name))
	}
	return errs
}
