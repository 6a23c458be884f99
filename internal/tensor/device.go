package tensor

// Device identifies where tensor computation runs.
//
// Host memory always holds tensor data; an accelerator device only changes
// which backend executes the heavy kernels.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns the lower-case device name used in configuration files.
func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}
