package store

import (
	"context"
	"fmt"
	"strings"

	"crudgate/internal/metadata"
)

// Migrator keeps tables in sync with registered entity metadata: it
// creates missing tables, adds missing columns, and creates join tables
// for many-to-many relations.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll migrates every registered entity, then every join table.
func (m *Migrator) MigrateAll(ctx context.Context, registry *metadata.Registry) error {
	entities := registry.AllEntities()
	for _, e := range entities {
		if err := m.Migrate(ctx, registry, e); err != nil {
			return err
		}
	}
	for _, e := range entities {
		for i := range e.Relations {
			rel := &e.Relations[i]
			if rel.Type != metadata.ManyToMany {
				continue
			}
			target := registry.GetEntity(rel.Target)
			if target == nil {
				return fmt.Errorf("relation %s.%s targets unknown entity %q", e.Name, rel.Name, rel.Target)
			}
			if err := m.MigrateJoinTable(ctx, rel, e, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// Migrate ensures the table matches the entity metadata. Creates the table
// if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, registry *metadata.Registry, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, registry, entity)
	}
	return m.alterTable(ctx, registry, entity)
}

// MigrateJoinTable creates a join table for a many-to-many relation if it
// doesn't exist.
func (m *Migrator) MigrateJoinTable(ctx context.Context, rel *metadata.Relation, sourceEntity, targetEntity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	d := m.store.Dialect
	sourceType := d.ColumnType(sourceEntity.PrimaryKey.Type, 0)
	targetType := d.ColumnType(targetEntity.PrimaryKey.Type, 0)

	sql := fmt.Sprintf(
		`CREATE TABLE %s (
			%s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
			%s %s NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
			PRIMARY KEY (%s, %s)
		)`,
		rel.JoinTable,
		rel.SourceJoinKey, sourceType, sourceEntity.Table, sourceEntity.PrimaryKey.Field,
		rel.TargetJoinKey, targetType, targetEntity.Table, targetEntity.PrimaryKey.Field,
		rel.SourceJoinKey, rel.TargetJoinKey,
	)

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, registry *metadata.Registry, entity *metadata.Entity) error {
	var cols []string
	for i := range entity.Fields {
		cols = append(cols, m.buildColumnDef(entity, &entity.Fields[i]))
	}
	for i := range entity.Relations {
		rel := &entity.Relations[i]
		if col := m.fkColumnDef(registry, entity, rel); col != "" {
			cols = append(cols, col)
		}
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, registry *metadata.Registry, entity *metadata.Entity) error {
	d := m.store.Dialect
	for i := range entity.Fields {
		f := &entity.Fields[i]
		colType := d.ColumnType(f.Type, f.Precision)
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", entity.Table, f.Name, colType)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	for i := range entity.Relations {
		rel := &entity.Relations[i]
		col := m.fkColumnDef(registry, entity, rel)
		if col == "" {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", entity.Table, col)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("add column %s.%s: %w", entity.Table, rel.SourceKey, err)
		}
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	s := err.Error()
	return strings.Contains(s, "duplicate column") || strings.Contains(s, "already exists")
}

// fkColumnDef returns the FK column definition for an owning to-one
// relation, or "" for relations that live on the other side.
func (m *Migrator) fkColumnDef(registry *metadata.Registry, entity *metadata.Entity, rel *metadata.Relation) string {
	if !rel.IsToOne() || rel.SourceKey == "" {
		return ""
	}
	target := registry.GetEntity(rel.Target)
	if target == nil {
		return ""
	}
	colType := m.store.Dialect.ColumnType(target.PrimaryKey.Type, 0)
	return fmt.Sprintf("%s %s REFERENCES %s(%s)", rel.SourceKey, colType, target.Table, target.PrimaryKey.Field)
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	d := m.store.Dialect
	col := f.Name + " " + d.ColumnType(f.Type, f.Precision)

	if f.Name == entity.PrimaryKey.Field {
		col += " PRIMARY KEY"
		if entity.PrimaryKey.Generated && entity.PrimaryKey.Type == "uuid" {
			if def := d.UUIDDefault(); def != "" {
				col += " " + def
			}
		}
		return col
	}

	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}

	if f.Default != nil {
		switch v := f.Default.(type) {
		case string:
			col += fmt.Sprintf(" DEFAULT '%s'", v)
		case float64:
			col += fmt.Sprintf(" DEFAULT %v", v)
		case bool:
			col += fmt.Sprintf(" DEFAULT %t", v)
		default:
			col += fmt.Sprintf(" DEFAULT '%v'", v)
		}
	}
	return col
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}
