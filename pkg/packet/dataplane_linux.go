//go:build linux

package packet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/afpacket"
	"golang.org/x/sys/unix"
)

// Ring geometry. Frames must hold a whole jumbo stimulus so it can be
// matched; blocks are a multiple of both the frame and page size.
const (
	frameSize   = 1 << 14
	blockSize   = frameSize * 32
	numBlocks   = 64
	pollTimeout = 100 * time.Millisecond
)

var _ portIO = (*afpacket.TPacket)(nil)

func openPort(name string) (portIO, error) {
	if err := setPromiscuous(name); err != nil {
		return nil, fmt.Errorf("promiscuous mode: %w", err)
	}
	return afpacket.NewTPacket(
		afpacket.OptInterface(name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(pollTimeout),
	)
}

func readTimedOut(err error) bool {
	return errors.Is(err, afpacket.ErrTimeout)
}

// setPromiscuous sets IFF_PROMISC so frames leaked to foreign MACs are seen.
func setPromiscuous(name string) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return err
	}
	flags := ifr.Uint16()
	if flags&unix.IFF_PROMISC != 0 {
		return nil
	}
	ifr.SetUint16(flags | unix.IFF_PROMISC)
	return unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr)
}
