package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	rocketchat "github.com/NeboLoop/rocketchat-go-sdk"
	"github.com/NeboLoop/rocketchat-go-sdk/config"
	"github.com/NeboLoop/rocketchat-go-sdk/sessionstore"
)

const version = "0.1.0"

var (
	cfgFile  string
	hostFlag string
	roomFlag string
	logLevel string

	cfg *config.Config
)

var rootCmd = newRootCmd()

func Execute() error {
	return rootCmd.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rcctl",
		Short:        "rcctl - drive a Rocket.Chat room from the command line",
		Long:         "rcctl signs in to a Rocket.Chat server through an external identity provider and reads, posts and watches messages in a single room.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.rcctl/rcctl.toml)")
	root.PersistentFlags().StringVar(&hostFlag, "host", "", "server URL, overrides config")
	root.PersistentFlags().StringVar(&roomFlag, "room", "", "room id, overrides config")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides config")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newLoginCmd(), newLogoutCmd(), newMeCmd())
	root.AddCommand(roomCommands()...)
	root.AddCommand(messageCommands()...)
	root.AddCommand(newUploadCmd(), newWatchCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of rcctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rcctl v%s\n", version)
		},
	}
}

func loadConfig(logOut io.Writer) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if hostFlag != "" {
		loaded.Host = hostFlag
	}
	if roomFlag != "" {
		loaded.Room = roomFlag
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	cfg = loaded

	SetupLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	return nil
}

// newClient builds the adapter from the loaded config. Without a master
// key the session only lives for this invocation.
func newClient(metrics *rocketchat.Metrics) (*rocketchat.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store rocketchat.SessionStore
	if key := cfg.MasterKey(); key != "" {
		s, err := sessionstore.Open(cfg.SessionFile, key)
		if err != nil {
			return nil, err
		}
		store = s
	} else {
		slog.Warn("no master key set, session will not be persisted", "env", cfg.MasterKeyEnv)
	}

	return rocketchat.New(rocketchat.Config{
		Host:           cfg.Host,
		RoomID:         cfg.Room,
		Store:          store,
		Metrics:        metrics,
		LoginService:   cfg.Login.Service,
		LoginExpiresIn: cfg.Login.ExpiresIn,
	})
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEnvelope prints the response body and turns a failure reported in
// it into the command's error.
func printEnvelope(cmd *cobra.Command, env *rocketchat.Envelope, err error) error {
	if env != nil {
		if perr := printJSON(cmd.OutOrStdout(), env); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	return env.Err()
}

func envOr(value, name string) string {
	if value != "" {
		return value
	}
	return os.Getenv(name)
}
