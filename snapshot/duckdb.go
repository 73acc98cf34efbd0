//go:build cgo

package snapshot

import _ "github.com/marcboeker/go-duckdb"

func init() { duckDBAvailable = true }
