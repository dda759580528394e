// Package migrations содержит схему PostgreSQL search-service
package migrations

import (
	"embed"

	"SocialMeshPlatform/pkg/database"
)

//go:embed *.sql
var files embed.FS

// Schema миграции search-service
func Schema() database.Migrations {
	return database.Migrations{Service: "search", FS: files}
}
