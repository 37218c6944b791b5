//go:build !windows && !darwin && !linux

package rawinput

// No raw-input backend is registered for this platform; Capture.Enable
// falls back to framework-reported cursor deltas.
