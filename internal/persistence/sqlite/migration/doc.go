// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files follow the naming convention {version}_{description}.sql
// (for example "002_work_orders.sql") and are read from an fs.FS, usually an
// embed.FS compiled into the binary. Applied versions are tracked in the
// schema_migrations table so each file runs exactly once, inside its own
// transaction.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "."), migration.NewSQLiteExecutor(db), logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
