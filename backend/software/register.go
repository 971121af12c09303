package software

import "github.com/gogpu/fsr/backend"

// init registers the software device on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() (backend.Device, error) {
		return New(), nil
	})
}
