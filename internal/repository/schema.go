package repository

import _ "embed"

// Schema creates the plan history tables. It is idempotent.
//
//go:embed schema.sql
var Schema string
