// Package db embeds the database schema.
package db

import _ "embed"

// Schema holds the DDL for the catalog, order, reservation and auth tables.
//
//go:embed migrations/001_schema.sql
var Schema string
