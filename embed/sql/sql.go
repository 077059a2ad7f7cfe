package sql

import _ "embed"

// Schema creates the task tables. It is idempotent.
//
//go:embed schema.sql
var Schema string
