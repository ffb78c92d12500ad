// Package web embeds the server-rendered templates, static assets and SQL
// migrations into the binaries.
package web

import (
	"embed"
	"io/fs"
)

// Templates embeds HTML templates.
//
//go:embed templates
var Templates embed.FS

// Static embeds static assets.
//
//go:embed static
var Static embed.FS

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the SQL migrations rooted at the migrations directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
