// Package migrations содержит схему PostgreSQL post-service
package migrations

import (
	"embed"

	"SocialMeshPlatform/pkg/database"
)

//go:embed *.sql
var files embed.FS

// Schema миграции post-service
func Schema() database.Migrations {
	return database.Migrations{Service: "post", FS: files}
}
