//go:build linux

package wire

import (
	"context"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl layout, per Linux's <linux/spi/spidev.h>. Only the single
// full-duplex message variant is needed here.
const (
	spiIOCWrMode    = 0x40016B01
	spiIOCWrBitsPW  = 0x40016B03
	spiIOCWrMaxSpdHz = 0x40046B04
)

type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNBits     uint8
	rxNBits     uint8
	pad         uint16
}

// spiIOCMessage reproduces Linux's SPI_IOC_MESSAGE(n) macro: an ioctl
// request code tagged read+write, magic 'k', size n*sizeof(spi_ioc_transfer).
func spiIOCMessage(n int) uintptr {
	const sizeofSPIIOCTransfer = 32
	const iocRead, iocWrite = 2, 1
	size := uintptr(sizeofSPIIOCTransfer * n)
	return uintptr(iocRead|iocWrite)<<30 | size<<16 | uintptr('k')<<8
}

// LinuxSPITransceiver drives a real /dev/spidevX.Y duplex transfer and
// reads the peer's data-ready line from a sysfs GPIO value file.
type LinuxSPITransceiver struct {
	fd       int
	size     int
	speedHz  uint32
	readyPath string
}

// OpenLinuxSPI opens device (e.g. "/dev/spidev0.0") and, if readyGPIOPath
// is non-empty, prepares to poll that sysfs GPIO value file for the
// firmware's data-ready edge.
func OpenLinuxSPI(device string, speedHz, bufferSize int, readyGPIOPath string) (*LinuxSPITransceiver, error) {
	fd, err := unix.Open(device, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("wire: open %s: %w", device, err)
	}
	t := &LinuxSPITransceiver{fd: fd, size: bufferSize, speedHz: uint32(speedHz), readyPath: readyGPIOPath}

	var mode uint8 = 0
	if err := unix.IoctlSetInt(fd, spiIOCWrMode, int(mode)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wire: set SPI mode: %w", err)
	}
	var bits uint8 = 8
	if err := unix.IoctlSetInt(fd, spiIOCWrBitsPW, int(bits)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wire: set SPI bits-per-word: %w", err)
	}
	if err := unix.IoctlSetInt(fd, spiIOCWrMaxSpdHz, speedHz); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wire: set SPI speed: %w", err)
	}
	return t, nil
}

func (t *LinuxSPITransceiver) Exchange(tx, rx []byte) error {
	if len(tx) != t.size || len(rx) != t.size {
		return fmt.Errorf("wire: buffer size mismatch: want %d", t.size)
	}
	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(t.size),
		speedHz:     t.speedHz,
		bitsPerWord: 8,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), spiIOCMessage(1), uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return fmt.Errorf("wire: SPI_IOC_MESSAGE: %w", errno)
	}
	return nil
}

// WaitForDataReady polls the sysfs GPIO value file for a rising edge. If
// no readyPath was configured it falls back to a short sleep, giving an
// idle-tick poll interval.
func (t *LinuxSPITransceiver) WaitForDataReady(ctx context.Context) error {
	if t.readyPath == "" {
		select {
		case <-time.After(25 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	valuePath := t.readyPath + "/value"
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	last := readGPIOValue(valuePath)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur := readGPIOValue(valuePath)
			if cur == 1 && last == 0 {
				return nil
			}
			last = cur
		}
	}
}

func readGPIOValue(path string) int {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return 0
	}
	if data[0] == '1' {
		return 1
	}
	return 0
}

func (t *LinuxSPITransceiver) BufferSize() int { return t.size }

// Close releases the spidev file descriptor.
func (t *LinuxSPITransceiver) Close() error {
	return unix.Close(t.fd)
}
