// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between components and makes the
// durations discoverable.
package timeouts

import "time"

// SliceFetch caps the wait for a single world-slice fetch from the backing
// store during query execution.
const SliceFetch = 2 * time.Second

// ProjectionApply caps the time allowed to apply one change event to a
// world slice, including the store round trip.
const ProjectionApply = 5 * time.Second
