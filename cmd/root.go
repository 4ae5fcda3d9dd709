package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/bnema/magickey/internal/binding"
	"github.com/bnema/magickey/internal/device"
	"github.com/bnema/magickey/internal/logger"
	"github.com/bnema/magickey/internal/rules"
	"github.com/bnema/magickey/internal/supervisor"
	"github.com/bnema/magickey/internal/window"
	"github.com/spf13/cobra"
)

var (
	// Version is set during build.
	Version = "0.1.0-dev"

	configPath       string
	listDevices      bool
	readEventsDevice string
	debug            bool
	uid              int

	rootCmd = &cobra.Command{
		Use:   "magickey",
		Short: "Chord-based keyboard remapper for Linux",
		Long: `magickey grabs one or more physical keyboards, watches for configured
modifier+key chords, and re-emits the remapped chord on a paired virtual
device while letting everything else pass through untouched.`,
		SilenceUsage: true,
		RunE:         runRoot,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the JSON rules config")
	rootCmd.Flags().BoolVarP(&listDevices, "list-devices", "l", false, "list input devices and exit")
	rootCmd.Flags().StringVarP(&readEventsDevice, "read-events", "e", "", "print categorized key events from DEVICE (path, phys, name, or eventN suffix) and exit")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.Flags().IntVarP(&uid, "uid", "u", os.Getuid(), "uid owning the sway IPC socket to connect to")
}

// runRoot dispatches on whichever flags were set, mirroring the
// original's list-devices, then read-events, then config+run branch
// order.
func runRoot(cmd *cobra.Command, args []string) error {
	logger.SetDebug(debug)

	switch {
	case listDevices:
		return runListDevices()
	case readEventsDevice != "":
		return runReadEvents(readEventsDevice)
	default:
		return runSupervisor()
	}
}

func runSupervisor() error {
	if configPath == "" {
		configPath = "./magickey.conf"
		if _, err := os.Stat(configPath); err != nil {
			if home, herr := os.UserHomeDir(); herr == nil {
				configPath = home + "/.config/magickey/conf.json"
			}
		}
	}

	specs, err := rules.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	winCtx := window.NewContext()

	bindings := make([]*binding.Binding, 0, len(specs))
	for _, spec := range specs {
		selectors := spec.KeyboardSelectors
		if len(selectors) == 0 {
			all, err := device.FindAll()
			if err != nil {
				return fmt.Errorf("enumerate keyboards: %w", err)
			}
			for _, d := range all {
				selectors = append(selectors, d.Path())
			}
		}
		for _, sel := range selectors {
			bindings = append(bindings, binding.New(sel, spec.Rules, winCtx))
		}
	}

	if len(bindings) == 0 {
		return fmt.Errorf("no keyboard bindings configured")
	}

	s := supervisor.New(bindings, winCtx, uid)
	return s.Run(context.Background())
}
