// Package migrations содержит схему PostgreSQL media-service
package migrations

import (
	"embed"

	"SocialMeshPlatform/pkg/database"
)

//go:embed *.sql
var files embed.FS

// Schema миграции media-service
func Schema() database.Migrations {
	return database.Migrations{Service: "media", FS: files}
}
