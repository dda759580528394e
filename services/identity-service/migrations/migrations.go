// Package migrations содержит схему PostgreSQL identity-service
package migrations

import (
	"embed"

	"SocialMeshPlatform/pkg/database"
)

//go:embed *.sql
var files embed.FS

// Schema миграции identity-service
func Schema() database.Migrations {
	return database.Migrations{Service: "identity", FS: files}
}
