package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	tockapp "tock/internal/app"
	"tock/internal/config"
	"tock/internal/core/finish"
	"tock/internal/core/orchestrator"
	"tock/internal/logging"
	"tock/internal/platform"
)

const (
	appName = "tock"
	appID   = "io.github.tock"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Countdown timer with a spoken finish signal",
	Long: `tock counts down a configured duration from the system tray, then plays
a short cue followed by a voice clip. While it runs, a sticky notification
shows the remaining time and an OS-level alarm fires even if tock is frozen.`,
	SilenceUsage: true,
	RunE:         runDesktop,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is "+config.File()+")")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// environment is the loaded configuration and logger shared by every command.
type environment struct {
	config *config.Config
	logger *slog.Logger
	closer io.Closer
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	loader := config.NewLoader()
	if err := loader.BindFlag("logging.level", cmd.Flag("log-level")); err != nil {
		return nil, err
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("read config flag: %w", err)
	}
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		log.Printf("logging: %v, falling back to stderr", err)
		logger, closer, _ = logging.New("", cfg.Logging.Level)
	}
	return &environment{config: cfg, logger: logger, closer: closer}, nil
}

func (env *environment) close() {
	if err := env.closer.Close(); err != nil {
		log.Printf("close log: %v", err)
	}
}

// newAudio returns the finish signal backend, or nil when audio is off.
func (env *environment) newAudio() (finish.Backend, func()) {
	if !env.config.Audio.Enabled {
		return nil, func() {}
	}
	backend := platform.NewBeepBackend(
		env.config.Audio.SampleRate,
		tockapp.AudioSources(env.config.Audio),
		env.logger.With("component", "audio"),
	)
	return backend, backend.Close
}

// newInhibitor returns the keep-awake hook, or nil when it is off or no
// screensaver service answers.
func (env *environment) newInhibitor() (orchestrator.Inhibitor, func()) {
	if !env.config.Timer.KeepAwake {
		return nil, func() {}
	}
	inhibitor, err := platform.NewScreenSaverInhibitor(appName, env.logger.With("component", "keep_awake"))
	if err != nil {
		env.logger.Info("keep awake unavailable", "error", err)
		return nil, func() {}
	}
	return inhibitor, func() {
		if err := inhibitor.Close(); err != nil {
			env.logger.Debug("close inhibitor", "error", err)
		}
	}
}

func logFailure(logger *slog.Logger, action string, err error) {
	if err != nil {
		logger.Debug(action+" rejected", "error", err)
	}
}
