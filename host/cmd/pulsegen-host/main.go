// Command pulsegen-host drives the pulse generator firmware over USB serial
// and runs the host simulator.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pulsegen/host/config"
	"pulsegen/protocol"
)

var (
	configPath string
	device     string
	timeout    time.Duration

	rootCmd = &cobra.Command{
		Use:           "pulsegen-host",
		Short:         "Pulse generator host tool",
		Long:          "Apply settings to a pulse generator over USB serial, read its status, or run a simulated generator with an HTTP control surface.",
		Version:       "link protocol " + protocol.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "", "Serial device path (overrides config)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", time.Second, "Request timeout")

	rootCmd.AddCommand(statusCmd, applyCmd, eventsCmd, simCmd)
}

// loadConfig applies command-line overrides on top of config.Load
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if device != "" {
		cfg.Serial.Device = device
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
