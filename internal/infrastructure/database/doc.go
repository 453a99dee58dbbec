// Package database opens the bridge's SQLite database and applies its
// schema migrations.
//
// The only table the bridge owns is the command log; see package
// commandlog. Migrations are plain SQL files embedded by package
// migrations and passed to Migrate as an fs.FS.
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
