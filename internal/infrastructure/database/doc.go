// Package database provides the SQLite connection behind the sqlite identity
// backend.
//
// Open applies WAL mode and a busy timeout, restricts the file to 0600, and
// verifies the connection. Migrate applies forward-only *.up.sql files from
// an fs.FS, recording each in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
