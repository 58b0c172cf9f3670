package appfs

import "embed"

//go:embed migrations templates templates/email/_base.gohtml templates/email/_base.txt
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
)
