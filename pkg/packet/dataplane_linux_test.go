//go:build linux

package packet

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/google/gopacket/afpacket"
	"github.com/stretchr/testify/assert"
)

func TestReadTimedOut(t *testing.T) {
	assert.True(t, readTimedOut(afpacket.ErrTimeout))
	assert.True(t, readTimedOut(fmt.Errorf("read: %w", afpacket.ErrTimeout)))
	assert.False(t, readTimedOut(io.EOF))
	assert.False(t, readTimedOut(errors.New("socket closed")))
}

func TestRingGeometry(t *testing.T) {
	assert.Zero(t, blockSize%frameSize)
	assert.Zero(t, blockSize%os.Getpagesize())
	assert.GreaterOrEqual(t, frameSize, 9216+64, "jumbo frames must fit a ring slot")
}

func TestOpenPort_UnknownInterface(t *testing.T) {
	_, err := openPort("dropcheck-nosuch0")
	assert.Error(t, err)
}
