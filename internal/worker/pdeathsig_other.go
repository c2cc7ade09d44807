//go:build !linux

package worker

// EnableParentDeathSignal is a no-op outside Linux; orphaned daemons are
// recovered by the sweep instead.
func EnableParentDeathSignal() error {
	return nil
}
