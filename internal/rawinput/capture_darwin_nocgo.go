//go:build darwin && !cgo

package rawinput

// Raw input capture on macOS requires CGEventTap, which needs CGO to bridge
// CoreGraphics. Builds without CGO have no darwinBackend registered, so
// Capture.Enable falls back to framework-reported deltas.
