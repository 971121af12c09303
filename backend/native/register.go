//go:build !nogpu

package native

import "github.com/gogpu/fsr/backend"

// init registers the native device on package import. The factory fails
// when no hardware HAL backend has been imported.
func init() {
	backend.Register(backend.BackendNative, func() (backend.Device, error) {
		d, err := OpenBest()
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}
