package migrate

import "embed"

// Files carries the schema and seed SQL inside the binary.
//
//go:embed sql seeds
var Files embed.FS

const (
	MigrationsDir = "sql"
	SeedsDir      = "seeds"
)
