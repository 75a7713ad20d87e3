// Package cli wires the command tree for the danmaku-sender binary.
package cli

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TouhouGleaners/danmaku-sender/internal/bili"
	"github.com/TouhouGleaners/danmaku-sender/internal/config"
	"github.com/TouhouGleaners/danmaku-sender/internal/history"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "danmaku-sender",
		Short:         "Batch danmaku sender with survival tracking",
		Long:          "Submits timestamped danmaku to a video at a humanized pace, records every accepted item, and reconciles which ones actually survived server-side.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "./config.yaml", "path to config file (yaml or json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newInfoCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newMonitorCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))

	return cmd
}

// app bundles the shared dependencies commands construct from config.
type app struct {
	cfg *config.Config
	mgr *config.Manager
	log logx.Logger
}

func loadApp(opts *RootOptions) (*app, error) {
	mgr := config.NewManager(opts.ConfigPath, logx.NewConsole("warn"))
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.ConsoleLogging(),
	}
	logCfg.File.Enabled = cfg.Logging.File.Enabled
	logCfg.File.Path = cfg.Logging.File.Path
	if opts.Verbose {
		logCfg.Level = "debug"
	}

	return &app{cfg: cfg, mgr: mgr, log: logx.New(logCfg)}, nil
}

func (a *app) client() (*bili.Client, error) {
	timeout, err := config.ParseDurationField("api.timeout", a.cfg.API.Timeout)
	if err != nil {
		return nil, err
	}
	return bili.New(bili.Config{
		SESSDATA:       a.cfg.Auth.SESSDATA,
		BiliJCT:        a.cfg.Auth.BiliJCT,
		Timeout:        timeout,
		RatePerSec:     a.cfg.API.RatePerSec,
		UseSystemProxy: a.cfg.Auth.UseSystemProxy,
	}, a.log)
}

func (a *app) store() (*history.Store, error) {
	path := a.cfg.Storage.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.New("storage.path not set and home directory unknown: " + err.Error())
		}
		path = filepath.Join(home, ".danmaku-sender", "history.db")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", a.cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return history.Open(history.Config{Path: path, BusyTimeout: busy}, a.log)
}
