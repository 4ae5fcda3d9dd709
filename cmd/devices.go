package cmd

import (
	"fmt"

	"github.com/bnema/magickey/internal/device"
	"github.com/bnema/magickey/internal/engine"
	"github.com/bnema/magickey/internal/keycodes"
)

// runListDevices implements -l/--list-devices: enumerate every EV_KEY
// capable input device and print its path, name, and phys.
func runListDevices() error {
	devices, err := device.FindAll()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("no keyboard-capable input devices found")
		return nil
	}

	for _, d := range devices {
		fmt.Printf("%s\t%s\t(%s)\n", d.Path(), d.Name(), d.Phys())
	}
	return nil
}

// runReadEvents implements -e/--read-events DEVICE: resolve selector to
// one device (path, phys, name, or eventN suffix, same as a config's
// "keyboards" entry) and print each key event's name and direction as it
// arrives, for diagnosing a config's src/dst combos against a real
// keyboard. It does not touch the engine or virtual devices at all.
func runReadEvents(selector string) error {
	d, err := device.Find(selector)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	fmt.Printf("reading from %s (%s)\n", d.Path(), d.Name())

	for {
		events, err := d.Read()
		if err != nil {
			return fmt.Errorf("read %s: %w", d.Path(), err)
		}

		for _, ev := range events {
			if !ev.IsKey {
				continue
			}
			name, ok := keycodes.CodeToName(ev.Code)
			if !ok {
				name = fmt.Sprintf("code_%d", ev.Code)
			}
			fmt.Printf("%s: %s %s\n", d.Path(), name, stateLabel(ev.State))
		}
	}
}

func stateLabel(s engine.KeyState) string {
	switch s {
	case engine.KeyUp:
		return "UP"
	case engine.KeyDown:
		return "DOWN"
	case engine.KeyHold:
		return "HOLD"
	default:
		return "?"
	}
}
