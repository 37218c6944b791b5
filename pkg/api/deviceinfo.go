package api

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
)

// deviceIdentity is the device OS/type pair declared on every
// session-allocation request via the client-identity headers.
type deviceIdentity struct {
	OSType string
	Arch   string
}

func collectDeviceIdentity() deviceIdentity {
	id := deviceIdentity{OSType: runtime.GOOS, Arch: runtime.GOARCH}
	if info, err := host.Info(); err == nil {
		id.OSType = normalizeOSType(info.OS)
	}
	return id
}

func normalizeOSType(os string) string {
	if os == "darwin" {
		return "macos"
	}
	return os
}
