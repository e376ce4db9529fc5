//go:build sqlite_vec && cgo

package indexstore

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// Built with -tags sqlite_vec, this registers the sqlite-vec extension
// so SearchVector's brute-force scan can be replaced by a vec0 virtual
// table and ANN index at the schema layer. Grounded on the teacher's
// internal/store/init_vec.go.
func init() {
	vec.Auto()
}
