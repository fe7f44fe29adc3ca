// Package vaultobserve carries the service's ambient logging and
// best-effort event publishing.
package vaultobserve

import "log"

// Logf writes a component-tagged log line, matching the bracketed
// "[component] message" convention used throughout the service.
func Logf(component, format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{component}, args...)...)
}
