package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tock/internal/platform"
)

var autostartCmd = &cobra.Command{
	Use:       "autostart [enable|disable|status]",
	Short:     "Launch the tray app at login",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"enable", "disable", "status"},
	RunE:      runAutostart,
}

func init() {
	rootCmd.AddCommand(autostartCmd)
}

func runAutostart(cmd *cobra.Command, args []string) error {
	autostart, err := platform.NewAutostart(appName, "")
	if err != nil {
		return err
	}
	action := "status"
	if len(args) == 1 {
		action = args[0]
	}

	out := cmd.OutOrStdout()
	switch action {
	case "enable":
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		if err := autostart.Enable(execPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Autostart enabled: %s\n", autostart.Path())
	case "disable":
		if err := autostart.Disable(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Autostart disabled")
	default:
		if autostart.Enabled() {
			fmt.Fprintf(out, "Autostart is on (%s)\n", autostart.Path())
		} else {
			fmt.Fprintln(out, "Autostart is off")
		}
	}
	return nil
}
