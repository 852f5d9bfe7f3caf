package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/host"
)

var (
	configFile string
	jsonMode   bool
	showStats  bool
	noPlugins  bool
)

var rootCmd = &cobra.Command{
	Use:   "hookmux",
	Short: "Hook orchestration engine for tool-execution hosts",
	Long: `hookmux runs registered hooks and plugins against host events.

The host writes one JSON event on stdin ({session_id, transcript_path,
cwd, hook_event_name, ...}); hookmux dispatches it through every
applicable hook in priority order and answers with an exit code
(0 ok, 1 failed, 2 blocked) or, with --json, a single verdict line.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := host.New(engineOptions())
		if err != nil {
			// Fail closed: a broken setup must not approve the operation.
			cmd.PrintErrln(err)
			os.Exit(host.ExitBlocking)
		}
		defer engine.Close()

		code := engine.RunOnce(cmd.Context(), cmd.InOrStdin(),
			cmd.OutOrStdout(), cmd.ErrOrStderr())
		os.Exit(code)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process a stream of events, one JSON object per line",
	Long: `serve keeps the engine resident and answers one verdict line per
event line. Hot reload of plugin manifests applies between events when
settings.enableHotReload is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := host.New(engineOptions())
		if err != nil {
			return err
		}
		defer engine.Close()

		return engine.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func engineOptions() host.Options {
	return host.Options{
		ConfigPath:  viper.GetString("config"),
		JSONMode:    viper.GetBool("json"),
		ShowStats:   showStats,
		NoDiscovery: viper.GetBool("no-plugins"),
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: .hookmux/config.yml)")
	rootCmd.PersistentFlags().BoolVar(&jsonMode, "json", false, "emit a JSON verdict line and always exit 0")
	rootCmd.PersistentFlags().BoolVar(&noPlugins, "no-plugins", false, "skip filesystem plugin discovery")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "print execution statistics to stderr after the run")

	viper.SetEnvPrefix(hooks.EnvPrefix)
	viper.AutomaticEnv()
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("no-plugins", rootCmd.PersistentFlags().Lookup("no-plugins"))

	rootCmd.AddCommand(serveCmd)
}

// GetRootCommand returns the root command for execution
func GetRootCommand(v string) *cobra.Command {
	rootCmd.Version = v
	hooks.EngineVersion = v
	return rootCmd
}
