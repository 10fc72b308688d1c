//go:build cgo

package store

// The libsql driver requires cgo; builds without cgo register only the pure
// Go sqlite driver.
import _ "github.com/tursodatabase/go-libsql"
