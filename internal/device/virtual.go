package device

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/bnema/magickey/internal/engine"
	"github.com/bnema/magickey/internal/keycodes"
	"golang.org/x/sys/unix"
)

// uinput ioctl requests and constants (linux/uinput.h,
// linux/input-event-codes.h). gvalkov/golang-evdev has no way to create
// a uinput device with a capability set computed at runtime, so the
// virtual side talks to /dev/uinput directly.
const (
	uinputMaxNameSize = 80

	uiSetEvbit  = 0x40045564
	uiSetKeybit = 0x40045565
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502
	uiDevSetup  = 0x405c5503

	busUSB = 0x03

	evSyn = 0x00
	evKey = 0x01

	synReport = 0
)

// uinputSetup matches struct uinput_setup.
type uinputSetup struct {
	ID struct {
		Bustype uint16
		Vendor  uint16
		Product uint16
		Version uint16
	}
	Name      [uinputMaxNameSize]byte
	FFEffects uint32
}

// inputEvent matches the kernel's struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Virtual is a userspace-created input device that mirrors a physical
// keyboard's capabilities (plus every code referenced by its rules) and
// emits the engine's synthesized events.
type Virtual struct {
	fd int
}

// NewVirtual opens /dev/uinput and creates a device named
// "magickey-<physicalName>" exposing exactly codes (the union of the
// physical device's capabilities and every key referenced by the
// binding's rules, per spec.md §4.E). EV_SYN is not a requested
// capability bit -- the kernel enables it automatically for any device
// with EV_KEY capabilities, and uinput rejects requesting it
// explicitly.
func NewVirtual(physicalName string, codes map[keycodes.Code]struct{}) (*Virtual, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w (user must be in the input group)", err)
	}

	v := &Virtual{fd: fd}

	if err := v.ioctl(uiSetEvbit, evKey); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_SET_EVBIT: %w", err)
	}
	for code := range codes {
		if err := v.ioctl(uiSetKeybit, uintptr(code)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	var setup uinputSetup
	setup.ID.Bustype = busUSB
	setup.ID.Vendor = 0x4d4b  // "MK"
	setup.ID.Product = 0x0001
	setup.ID.Version = 1
	name := fmt.Sprintf("magickey-%s", physicalName)
	if len(name) >= uinputMaxNameSize {
		name = name[:uinputMaxNameSize-1]
	}
	copy(setup.Name[:], name)

	if err := v.ioctlPtr(uiDevSetup, unsafe.Pointer(&setup)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_DEV_SETUP: %w", err)
	}
	if err := v.ioctl(uiDevCreate, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", err)
	}

	// The kernel creates the device node asynchronously; give udev a
	// moment before callers try to use it.
	time.Sleep(50 * time.Millisecond)

	return v, nil
}

func (v *Virtual) ioctl(req, val uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), req, val)
	if errno != 0 {
		return errno
	}
	return nil
}

func (v *Virtual) ioctlPtr(req uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), req, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

func (v *Virtual) writeEvent(evType, code uint16, value int32) error {
	var tv unix.Timeval
	if err := unix.Gettimeofday(&tv); err != nil {
		return err
	}
	ev := inputEvent{Time: tv, Type: evType, Code: code, Value: value}

	buf := (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&ev))[:]
	_, err := unix.Write(v.fd, buf)
	return err
}

// WriteKey implements engine.Emitter.
func (v *Virtual) WriteKey(code keycodes.Code, state engine.KeyState) error {
	return v.writeEvent(evKey, uint16(code), int32(state))
}

// WriteRaw implements engine.Emitter for non-key passthrough events.
func (v *Virtual) WriteRaw(eventType uint16, code uint16, value int32) error {
	return v.writeEvent(eventType, code, value)
}

// Sync implements engine.Emitter.
func (v *Virtual) Sync() error {
	return v.writeEvent(evSyn, synReport, 0)
}

// Close destroys the virtual device and closes its file descriptor.
func (v *Virtual) Close() error {
	_ = v.ioctl(uiDevDestroy, 0)
	return unix.Close(v.fd)
}
