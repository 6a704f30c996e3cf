//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"

func init() {
	// Register sqlite-vec with the mattn/go-sqlite3 driver as an
	// auto-loadable extension. Build with -tags "sqlite_vec sqlite_fts5"
	// to keep full-text search as well; the pure-Go driver has fts5
	// built in.
	vec.Auto()
}
