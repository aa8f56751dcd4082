//go:build !linux

package runloop

import (
	"fmt"
	"runtime"
)

func pinToCPU(cpu int) error {
	return fmt.Errorf("cpu pinning is not supported on %s", runtime.GOOS)
}
