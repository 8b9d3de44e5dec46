// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contiene las migraciones de todos los dialectos soportados.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
