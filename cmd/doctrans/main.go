package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doctrans/doctrans/internal/log"
	"github.com/doctrans/doctrans/internal/model"
)

const configEnv = "DOCTRANS_CONFIG"

// app is the state shared by the commands of one invocation.
type app struct {
	userConfigPath string // /default/config/path/doctrans on given OS
	configPath     string // actual config file used
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
}

func main() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	a := &app{userConfigPath: filepath.Join(d, "doctrans")}

	if err := newRootCmd(a).Execute(); err != nil {
		slog.Error("doctrans failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "doctrans",
		Short:        "Client of the document translation server",
		SilenceUsage: true,
		// never print messages
		SilenceErrors: true,
		// parse or create a config, setup logging
		PersistentPreRunE: a.init,
	}
	rootCmd.PersistentFlags().StringVar(&a.flagConfigFilePath, "config", "", "Config file to load - default is doctrans.yaml in current directory or in "+a.userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&a.flagVerbose, "verbose", false, "verbose logging")

	rootCmd.AddCommand(a.translateCmd())
	rootCmd.AddCommand(a.clearCacheCmd())
	rootCmd.AddCommand(a.exportSummaryCmd())
	rootCmd.AddCommand(a.downloadCmd())
	rootCmd.AddCommand(a.historyCmd())
	rootCmd.AddCommand(a.versionCmd())
	return rootCmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "version provide version of a doctrans",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				_, _ = fmt.Fprintln(w, "doctrans: version info not available")
				return
			}

			if a.configPath != "" {
				_, _ = fmt.Fprintf(w, "config:   %s\n", a.configPath)
			}
			_, _ = fmt.Fprintf(w, "doctrans: %s\n", info.Main.Version)
			_, _ = fmt.Fprintf(w, "go:       %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					_, _ = fmt.Fprintf(w, "commit:   %s\n", s.Value)
				case "vcs.time":
					_, _ = fmt.Fprintf(w, "date:     %s\n", s.Value)
				case "vcs.modified":
					_, _ = fmt.Fprintf(w, "dirty:    %s\n", s.Value)
				}
			}
		},
	}
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	if a.flagConfigFilePath != "" {
		a.configPath = a.flagConfigFilePath
	} else if envConfig := os.Getenv(configEnv); envConfig != "" {
		a.configPath = envConfig
	} else {
		for _, d := range []string{".", a.userConfigPath} {
			path := filepath.Join(d, "doctrans.yaml")
			if exists(path) {
				a.configPath = path
				break
			}
		}
	}

	var err error
	if a.configPath == "" {
		err = a.storeDefaultConfig()
	} else {
		err = a.loadConfig()
	}
	if err != nil {
		return err
	}

	// --verbose has a precedence over config file
	if a.flagVerbose {
		a.config.Service.Verbose = true
	}
	slog.SetDefault(log.New(cmd.ErrOrStderr(), a.config.Service.Verbose))

	slog.Debug("doctrans run", "configPath", a.configPath)
	slog.Debug("doctrans run", "config", a.config)
	return nil
}

func (a *app) storeDefaultConfig() error {
	a.config = model.DefaultConfig()
	a.config.History.Path = filepath.Join(a.userConfigPath, "history.db")
	a.configPath = filepath.Join(a.userConfigPath, "doctrans.yaml")
	err := os.MkdirAll(filepath.Dir(a.configPath), 0755)
	if err != nil {
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(a.configPath), err)
	}

	f, err := os.Create(a.configPath)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", a.configPath, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if err := encodeConfig(f, a.config); err != nil {
		return fmt.Errorf("storing configuration: %w", err)
	}
	return nil
}

func encodeConfig(w io.Writer, cfg model.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func (a *app) loadConfig() error {
	f, err := os.Open(a.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	a.config, err = model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d)
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
