package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devwelkin/cannedhttp/internal/config"
	"github.com/devwelkin/cannedhttp/internal/handler"
	"github.com/devwelkin/cannedhttp/internal/logging"
	"github.com/devwelkin/cannedhttp/internal/server"
	"github.com/devwelkin/cannedhttp/internal/version"
)

// options holds the flag values shared by every command.
type options struct {
	configPath  string
	host        string
	port        int
	debug       bool
	showVersion bool
	cfg         *config.Config
}

// longFlags may be written with a single dash, e.g. "-host 0.0.0.0".
var longFlags = []string{"host", "port", "config", "debug", "version"}

// NormalizeArgs rewrites single-dash long flags into their double-dash form so
// "-host x -port 1" parses like "--host x --port 1".
func NormalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		if arg == "--" {
			copy(out[i:], args[i:])
			break
		}
		if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
			continue
		}
		name, _, _ := strings.Cut(arg[1:], "=")
		for _, flag := range longFlags {
			if name == flag {
				out[i] = "-" + arg
				break
			}
		}
	}
	return out
}

// Execute runs the command tree against args.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(NormalizeArgs(args))
	return root.ExecuteContext(ctx)
}

// NewRootCmd creates the root command. Run without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   version.AppName,
		Short: version.Description,
		Long: fmt.Sprintf(`%s - %s

Accepts one connection at a time, reads a single "METHOD / VERSION" request
and answers GET, POST, PUT, PATCH and DELETE with fixed JSON payloads.
`, version.AppName, version.Description),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			logging.InitGlobalLogger(opts.debug, &cfg.Logging)
			logging.Debug("Debug logging enabled")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
				return nil
			}
			return serve(cmd, opts.cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.host, "host", config.DefaultHost, "host to bind or dial")
	flags.IntVar(&opts.port, "port", config.DefaultPort, "port to bind or dial")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	rootCmd.AddCommand(newSendCmd(opts))

	return rootCmd
}

// resolveConfig layers defaults, the config file and explicitly set flags.
func resolveConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.LoadDefault()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// flags only win when given, so omitted flags fall back to the file or defaults
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, cfg *config.Config) error {
	srv, err := server.Serve(cfg.Server, handler.Default())
	if err != nil {
		logging.ErrorWith("Error starting server", map[string]interface{}{
			"error": err,
		})
		return err
	}

	logging.InfoWith("Server started", map[string]interface{}{
		"addr":        srv.Addr().String(),
		"read_budget": cfg.Server.ReadBudget,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", srv.Addr())

	<-cmd.Context().Done()

	if err := srv.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	logging.Info("Server gracefully stopped")
	return nil
}
