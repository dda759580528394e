// Package schema перечисляет миграции всех сервисов платформы
package schema

import (
	"fmt"
	"sort"

	"SocialMeshPlatform/pkg/database"
	identitymigrations "SocialMeshPlatform/services/identity-service/migrations"
	mediamigrations "SocialMeshPlatform/services/media-service/migrations"
	postmigrations "SocialMeshPlatform/services/post-service/migrations"
	searchmigrations "SocialMeshPlatform/services/search-service/migrations"
)

// All обозначает все сервисы
const All = "all"

var registry = map[string]func() database.Migrations{
	"identity": identitymigrations.Schema,
	"post":     postmigrations.Schema,
	"search":   searchmigrations.Schema,
	"media":    mediamigrations.Schema,
}

// Services имена сервисов в порядке применения
func Services() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve возвращает миграции сервиса или всех сервисов для "all"
func Resolve(service string) ([]database.Migrations, error) {
	if service == All {
		out := make([]database.Migrations, 0, len(registry))
		for _, name := range Services() {
			out = append(out, registry[name]())
		}
		return out, nil
	}

	schema, ok := registry[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q, must be one of: %v or %s", service, Services(), All)
	}
	return []database.Migrations{schema()}, nil
}
