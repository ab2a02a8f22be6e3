package main

import (
	"github.com/spf13/cobra"

	tockapp "tock/internal/app"
	"tock/internal/core/schedule"
	"tock/internal/ui/term"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the countdown in the terminal",
	Long: `Run the countdown as a full-screen terminal program. Desktop
notifications are posted over D-Bus when a session bus is available.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	scheduler := schedule.NewSystem()
	audio, closeAudio := env.newAudio()
	defer closeAudio()
	inhibitor, closeInhibitor := env.newInhibitor()
	defer closeInhibitor()

	host, releaseHost := tockapp.NewHost(tockapp.HostOptions{
		Config:    env.config.Notification,
		Scheduler: scheduler,
		Logger:    env.logger,
		Icon:      notificationIcon,
	})
	defer releaseHost()

	core, err := tockapp.NewCore(tockapp.Options{
		Config:    env.config,
		Logger:    env.logger,
		Scheduler: scheduler,
		Host:      host,
		Audio:     audio,
		Inhibitor: inhibitor,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			env.logger.Warn("shutdown", "error", err)
		}
	}()
	core.WatchStore(nil)

	return term.Run(core.Orchestrator, core.Preferences, env.config.Timer.AdjustStep)
}
