//go:build !unix && !windows

package ledger

// lockFile is a no-op where no advisory file lock exists; appends are then
// serialized only within one process.
func lockFile(path string, exclusive bool) (func(), error) {
	return func() {}, nil
}
