// Package database provides SQLite connectivity for the fleet store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations embedded into the binary
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements, and the database file is
// restricted to owner read/write permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only: new columns must be nullable or carry a
// DEFAULT, and each migration ships both .up.sql and .down.sql files.
package database
