//go:build !linux

package packet

import (
	"fmt"

	"github.com/newtron-network/dropcheck/pkg/util"
)

func openPort(name string) (portIO, error) {
	return nil, fmt.Errorf("%w: raw sockets need linux", util.ErrUnsupported)
}

func readTimedOut(error) bool { return false }
