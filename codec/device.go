package codec

import (
	"os"
	"strings"

	"github.com/arloliu/lvbits/format"
)

// DeviceAuto asks ResolveDevice to pick the best available device.
const DeviceAuto = "auto"

// nvidiaDeviceNode exists on hosts with a loaded NVIDIA driver.
var nvidiaDeviceNode = "/dev/nvidia0"

// ResolveDevice turns a device preference ("auto", "cpu", "cuda") into a device.
//
// "auto" (or empty) selects CUDA when an accelerator is visible and CPU otherwise.
func ResolveDevice(preference string) (format.Device, error) {
	p := strings.ToLower(strings.TrimSpace(preference))
	if p == "" || p == DeviceAuto {
		if CUDAAvailable() {
			return format.DeviceCUDA, nil
		}

		return format.DeviceCPU, nil
	}

	return format.ParseDevice(p)
}

// CUDAAvailable reports whether an NVIDIA accelerator appears to be usable.
//
// CUDA_VISIBLE_DEVICES set to an empty string or "-1" hides all devices.
func CUDAAvailable() bool {
	if v, ok := os.LookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		v = strings.TrimSpace(v)
		if v == "" || v == "-1" {
			return false
		}
	}

	_, err := os.Stat(nvidiaDeviceNode)

	return err == nil
}
