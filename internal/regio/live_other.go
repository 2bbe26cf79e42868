//go:build !windows

package regio

// OpenLiveHive always fails off Windows; offline hive files are the
// supported path there.
func OpenLiveHive(name string) (Hive, error) {
	return nil, ErrLiveUnsupported
}
