package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/syncbridge/bridge"
	"github.com/wippyai/syncbridge/confine"
	"github.com/wippyai/syncbridge/engine"
	"github.com/wippyai/syncbridge/internal/watgen"
	"github.com/wippyai/syncbridge/signature"
)

const envPrefix = "SYNCBRIDGE"

// settings is the merged result of flags, environment and config file.
type settings struct {
	Plugin      string        `mapstructure:"plugin"`
	Name        string        `mapstructure:"name"`
	Config      string        `mapstructure:"plugin-config"`
	Changes     []string      `mapstructure:"change"`
	Timeout     time.Duration `mapstructure:"timeout"`
	StackSize   int           `mapstructure:"stack-size"`
	MemoryPages uint32        `mapstructure:"memory-pages"`
	SlowSync    bool          `mapstructure:"slow-sync"`
	Verbose     bool          `mapstructure:"verbose"`
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "syncbridge",
		Short:         "Drive an OpenSync plugin compiled to WebAssembly",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
	}

	f := root.PersistentFlags()
	f.String("config", "", "config file (default $HOME/.syncbridge.yaml)")
	f.String("plugin", "", "plugin wasm module; the built-in demo plugin when empty")
	f.String("name", "plugin", "guest module name used in logs and traps")
	f.String("plugin-config", "", "configuration handed to the plugin")
	f.Duration("timeout", 30*time.Second, "bound on a single callback")
	f.Uint32("memory-pages", 0, "guest memory limit in 64KiB pages, 0 for the runtime default")
	f.Int("stack-size", confine.DefaultStackSize, "goroutine stack ceiling requested by the worker")
	f.BoolP("verbose", "v", false, "development logging at debug level")

	root.AddCommand(newRunCmd(v), newInspectCmd(v), newTUICmd(v))
	return root
}

// initConfig binds the flags of the command being run and reads the
// config file.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		return v.ReadInConfig()
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.SetConfigName(".syncbridge")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// newLogger builds the CLI logger and installs it in every package.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	engine.SetLogger(l.Named("engine"))
	confine.SetLogger(l.Named("confine"))
	signature.SetLogger(l.Named("signature"))
	bridge.SetLogger(l.Named("bridge"))
	return l, nil
}

// openBridge loads the configured plugin into a new bridge.
func openBridge(s settings, log *zap.Logger) (*bridge.Bridge, error) {
	wasm := watgen.Demo()
	name := s.Name
	if s.Plugin != "" {
		data, err := os.ReadFile(s.Plugin)
		if err != nil {
			return nil, fmt.Errorf("read plugin: %w", err)
		}
		wasm = data
	} else if name == "plugin" {
		name = "demo"
	}

	cfg := &engine.Config{
		Name:             name,
		MemoryLimitPages: s.MemoryPages,
		Stdout:           os.Stderr,
		Stderr:           os.Stderr,
	}
	return bridge.Open(wasm, cfg,
		bridge.WithLogger(log),
		bridge.WithWorker(
			confine.WithTimeout(s.Timeout),
			confine.WithStackSize(s.StackSize),
			confine.WithFatal(func(msg string, err error) {
				log.Error(msg, zap.Error(err))
			}),
		))
}

// parseChanges splits "uid=data" arguments.
func parseChanges(raw []string) ([]*bridge.Change, error) {
	var changes []*bridge.Change
	for _, kv := range raw {
		uid, data, ok := strings.Cut(kv, "=")
		if !ok || uid == "" {
			return nil, fmt.Errorf("change %q: want uid=data", kv)
		}
		changes = append(changes, bridge.NewChange(uid, []byte(data)))
	}
	return changes, nil
}
