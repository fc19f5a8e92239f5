package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"pulsegen/control"
	"pulsegen/host/mcu"
)

var (
	applyOpts = struct {
		pulses      int
		rpm         float64
		pulsePct    int
		enabled     bool
		fastFreq    float64
		fastPct     int
		fastEnabled bool
	}{}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Read the generator status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMCU(func(ctx context.Context, m *mcu.MCU) error {
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}

	applyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Apply new settings",
		Long: "Apply new settings. Only the flags given are sent; the generator keeps " +
			"its current value for the others, except pulses and pulse-pct which reset to 1 and 10.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form := applyForm(cmd)
			if len(form) == 0 {
				return fmt.Errorf("nothing to apply")
			}
			return withMCU(func(ctx context.Context, m *mcu.MCU) error {
				st, err := m.Submit(ctx, form)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "Dump the scheduler event ring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMCU(func(ctx context.Context, m *mcu.MCU) error {
				ev, err := m.Events(ctx)
				if err != nil {
					return err
				}
				for _, e := range ev.Events {
					fmt.Println(e.Text)
				}
				return nil
			})
		},
	}
)

func init() {
	f := applyCmd.Flags()
	f.IntVar(&applyOpts.pulses, "pulses", 1, "Pulses per revolution")
	f.Float64Var(&applyOpts.rpm, "rpm", 60, "Revolutions per minute")
	f.IntVar(&applyOpts.pulsePct, "pulse-pct", 10, "Pulse width as a percent of the period")
	f.BoolVar(&applyOpts.enabled, "enabled", false, "Enable the slow channel")
	f.Float64Var(&applyOpts.fastFreq, "fast-freq", 1000, "Fast channel frequency in Hz")
	f.IntVar(&applyOpts.fastPct, "fast-pct", 10, "Fast channel duty percent")
	f.BoolVar(&applyOpts.fastEnabled, "fast-enabled", false, "Enable the fast channel")
}

// applyForm encodes the flags the user set
func applyForm(cmd *cobra.Command) url.Values {
	form := url.Values{}
	set := func(flag, field, value string) {
		if cmd.Flags().Changed(flag) {
			form.Set(field, value)
		}
	}
	set("pulses", control.FieldPulses, strconv.Itoa(applyOpts.pulses))
	set("rpm", control.FieldRPM, strconv.FormatFloat(applyOpts.rpm, 'f', -1, 64))
	set("pulse-pct", control.FieldPulsePct, strconv.Itoa(applyOpts.pulsePct))
	set("enabled", control.FieldEnabled, boolField(applyOpts.enabled))
	set("fast-freq", control.FieldFastFreq, strconv.FormatFloat(applyOpts.fastFreq, 'f', -1, 64))
	set("fast-pct", control.FieldFastPct, strconv.Itoa(applyOpts.fastPct))
	set("fast-enabled", control.FieldFastEnabled, boolField(applyOpts.fastEnabled))
	return form
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// withMCU connects to the configured device and runs fn with a request context
func withMCU(fn func(ctx context.Context, m *mcu.MCU) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := mcu.Connect(&cfg.Serial)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx, m)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
