package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Pattern matches: {version}_{description}.sql
var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

type fsScanner struct {
	files fs.FS
	dir   string
}

// NewScanner creates a FileScanner reading *.sql files from dir inside files.
func NewScanner(files fs.FS, dir string) FileScanner {
	if dir == "" {
		dir = "."
	}
	return &fsScanner{files: files, dir: dir}
}

// ScanMigrations scans the migration directory for migration files
func (s *fsScanner) ScanMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(s.files, s.dir)
	if err != nil {
		return nil, NewMigrationError("", s.dir, "read directory", err)
	}

	var migrations []Migration
	versionMap := make(map[int]string) // version -> filename for duplicate detection

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		migration, err := s.parse(entry.Name())
		if err != nil {
			return nil, err
		}

		number, _ := strconv.Atoi(migration.Version)
		if existing, exists := versionMap[number]; exists {
			return nil, NewMigrationError(migration.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s",
					ErrDuplicateVersion, migration.Version, existing, entry.Name()))
		}
		versionMap[number] = entry.Name()

		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		versionI, _ := strconv.Atoi(migrations[i].Version)
		versionJ, _ := strconv.Atoi(migrations[j].Version)
		return versionI < versionJ
	})

	return migrations, nil
}

func (s *fsScanner) parse(filename string) (Migration, error) {
	matches := migrationFilePattern.FindStringSubmatch(filename)
	if len(matches) != 3 {
		return Migration{}, NewMigrationError("", filename, "validate filename",
			fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}.sql'",
				ErrInvalidMigrationFile, filename))
	}
	version := matches[1]

	filePath := path.Join(s.dir, filename)
	content, err := fs.ReadFile(s.files, filePath)
	if err != nil {
		return Migration{}, NewMigrationError(version, filePath, "read file", err)
	}

	sqlContent := string(content)
	if len(splitStatements(sqlContent)) == 0 {
		return Migration{}, NewMigrationError(version, filePath, "validate content",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	description := descriptionFromContent(sqlContent)
	if description == "" {
		description = strings.ReplaceAll(matches[2], "_", " ")
	}

	return Migration{
		Version:     version,
		Description: description,
		SQL:         sqlContent,
		FilePath:    filePath,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(content)),
	}, nil
}

// descriptionFromContent reads a leading "-- Description: ..." comment.
func descriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// splitStatements splits SQL content on semicolons and strips comment lines.
func splitStatements(sql string) []string {
	var statements []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
