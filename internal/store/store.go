// Package store persists retarget configurations and their joint mapping
// tables in SQLite.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/retarget/internal/backend"
	"github.com/banshee-data/retarget/internal/mapping"
	"github.com/banshee-data/retarget/internal/skeleton"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a config id does not exist.
var ErrNotFound = errors.New("config not found")

// Store is a SQLite database of retarget configurations.
type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	// Connection-scoped PRAGMAs go in the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations. It is a no-op at the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (s *Store) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// ConfigSummary is a row of the retarget_configs table without the payload.
type ConfigSummary struct {
	ID           string
	Name         string
	SourceJoints int
	TargetJoints int
	CreatedAt    time.Time
}

// ConfigRecord is a stored configuration.
type ConfigRecord struct {
	ConfigSummary
	Params *backend.ConfigInitParams
}

var variants = []struct {
	name  string
	tpose skeleton.TPoseType
}{
	{"min", skeleton.TPoseMin},
	{"max", skeleton.TPoseMax},
}

// SaveConfig stores p under a new id, along with both of its mapping tables.
func (s *Store) SaveConfig(name string, p *backend.ConfigInitParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("save config: %w", err)
	}
	data, err := p.Marshal()
	if err != nil {
		return "", fmt.Errorf("save config: %w", err)
	}

	id := uuid.New().String()
	tx, err := s.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO retarget_configs (config_id, name, source_joints, target_joints, params_json)
		VALUES (?, ?, ?, ?, ?)`,
		id, name, p.Source.JointCount(), p.Target.JointCount(), string(data))
	if err != nil {
		return "", fmt.Errorf("insert config: %w", err)
	}
	for _, v := range variants {
		if err := insertTable(tx, id, v.name, p.Table(v.tpose)); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// LoadConfig returns the stored config with the given id.
func (s *Store) LoadConfig(id string) (*ConfigRecord, error) {
	var (
		rec     ConfigRecord
		payload string
	)
	err := s.QueryRow(`SELECT config_id, name, source_joints, target_joints, params_json, created_at
		FROM retarget_configs WHERE config_id = ?`, id).
		Scan(&rec.ID, &rec.Name, &rec.SourceJoints, &rec.TargetJoints, &payload, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rec.Params, err = backend.ParseConfig([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", id, err)
	}
	return &rec, nil
}

// ListConfigs returns every stored config, newest first.
func (s *Store) ListConfigs() ([]ConfigSummary, error) {
	rows, err := s.Query(`SELECT config_id, name, source_joints, target_joints, created_at
		FROM retarget_configs ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConfigSummary
	for rows.Next() {
		var c ConfigSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.SourceJoints, &c.TargetJoints, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConfig removes a config and its mapping rows.
func (s *Store) DeleteConfig(id string) error {
	res, err := s.Exec(`DELETE FROM retarget_configs WHERE config_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SaveMappings replaces the mapping table stored for one T-pose variant
// ("min" or "max") of a config and updates the config payload to match.
func (s *Store) SaveMappings(id string, tpose skeleton.TPoseType, t *mapping.Table) error {
	variant, err := variantName(tpose)
	if err != nil {
		return err
	}
	rec, err := s.LoadConfig(id)
	if err != nil {
		return err
	}
	p := rec.Params
	if err := t.Validate(p.Source.JointCount(), p.Target.JointCount()); err != nil {
		return fmt.Errorf("save mappings: %w", err)
	}
	if tpose == skeleton.TPoseMax {
		p.MaxMappings = t.Clone()
	} else {
		p.MinMappings = t.Clone()
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}

	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"joint_mappings", "joint_mapping_entries"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE config_id = ? AND variant = ?`, id, variant); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := insertTable(tx, id, variant, t); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE retarget_configs SET params_json = ? WHERE config_id = ?`, string(data), id); err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	return tx.Commit()
}

// LoadMappings reads the mapping table of one T-pose variant of a config
// from its relational rows.
func (s *Store) LoadMappings(id string, tpose skeleton.TPoseType) (*mapping.Table, error) {
	variant, err := variantName(tpose)
	if err != nil {
		return nil, err
	}
	var exists int
	if err := s.QueryRow(`SELECT COUNT(*) FROM retarget_configs WHERE config_id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	t := &mapping.Table{}
	rows, err := s.Query(`SELECT target_joint, source_skeleton, behavior, entries_count
		FROM joint_mappings WHERE config_id = ? AND variant = ? ORDER BY mapping_index`, id, variant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m             mapping.JointMapping
			typ, behavior string
		)
		if err := rows.Scan(&m.TargetJointIndex, &typ, &behavior, &m.EntriesCount); err != nil {
			return nil, err
		}
		if m.SourceSkeleton, err = skeleton.ParseType(typ); err != nil {
			return nil, err
		}
		if m.Behavior, err = mapping.ParseBehavior(behavior); err != nil {
			return nil, err
		}
		t.Mappings = append(t.Mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := s.Query(`SELECT source_joint, position_weight, rotation_weight
		FROM joint_mapping_entries WHERE config_id = ? AND variant = ? ORDER BY entry_index`, id, variant)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var e mapping.JointMappingEntry
		if err := erows.Scan(&e.SourceJointIndex, &e.PositionWeight, &e.RotationWeight); err != nil {
			return nil, err
		}
		t.Entries = append(t.Entries, e)
	}
	return t, erows.Err()
}

func variantName(t skeleton.TPoseType) (string, error) {
	for _, v := range variants {
		if v.tpose == t {
			return v.name, nil
		}
	}
	return "", fmt.Errorf("no mapping table for T-pose variant %s", t)
}

func insertTable(tx *sql.Tx, id, variant string, t *mapping.Table) error {
	for i, m := range t.Mappings {
		_, err := tx.Exec(`INSERT INTO joint_mappings
			(config_id, variant, mapping_index, target_joint, source_skeleton, behavior, entries_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, variant, i, m.TargetJointIndex, m.SourceSkeleton.String(), m.Behavior.String(), m.EntriesCount)
		if err != nil {
			return fmt.Errorf("insert %s mapping %d: %w", variant, i, err)
		}
	}
	for i, e := range t.Entries {
		_, err := tx.Exec(`INSERT INTO joint_mapping_entries
			(config_id, variant, entry_index, source_joint, position_weight, rotation_weight)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, variant, i, e.SourceJointIndex, e.PositionWeight, e.RotationWeight)
		if err != nil {
			return fmt.Errorf("insert %s entry %d: %w", variant, i, err)
		}
	}
	return nil
}
