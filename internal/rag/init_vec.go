//go:build sqlite_vec && cgo

package rag

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers the vec0 module on every new sqlite3 connection.
	sqlite_vec.Auto()
}
