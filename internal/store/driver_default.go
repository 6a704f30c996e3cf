//go:build !sqlite_vec

package store

import (
	_ "modernc.org/sqlite"
)

// Pure-Go SQLite driver. Similarity ranking runs as a full scan in Go;
// build with -tags sqlite_vec for ANN acceleration via sqlite-vec.
const driverName = "sqlite"
