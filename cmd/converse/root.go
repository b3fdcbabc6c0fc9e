package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-converse/internal/dotenv"
	"github.com/vango-go/vai-converse/pkg/config"
	"github.com/vango-go/vai-converse/pkg/render"
	converse "github.com/vango-go/vai-converse/sdk"
)

// Dependencies are built once the persistent flags are parsed.
type Dependencies struct {
	Config   config.Config
	Logger   *slog.Logger
	Renderer *render.Renderer

	configPath string
	serverURL  string
	logLevel   string
	plain      bool
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "converse",
		Short:         "Talk to a conversation agent by voice or text",
		Long:          "Join an agent-led conversation over a websocket. Type to send text, or use /listen to speak.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load(cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&deps.configPath, "config", "c", "", "YAML config file (default $CONVERSE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&deps.serverURL, "server", "", "conversation server URL")
	rootCmd.PersistentFlags().StringVar(&deps.logLevel, "log-level", "", "debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&deps.plain, "plain", false, "disable colors and styling")

	rootCmd.AddCommand(NewJoinCmd(deps))
	rootCmd.AddCommand(NewStartCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

func (d *Dependencies) load(out io.Writer) error {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "converse", ".env"))
	}
	if _, err := dotenv.LoadFirst(candidates...); err != nil {
		return err
	}

	cfg, err := config.Load(d.configPath)
	if err != nil {
		return err
	}
	if d.serverURL != "" {
		cfg.Server.BaseURL = d.serverURL
	}
	if d.logLevel != "" {
		cfg.Log.Level = d.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.Config = cfg
	d.Logger = setupLogger(cfg.Log, os.Stderr)
	styled := !d.plain
	if f, ok := out.(*os.File); ok {
		styled = styled && render.IsTerminal(f)
	}
	d.Renderer = render.New(out, styled)
	return nil
}

func (d *Dependencies) newClient() *converse.Client {
	return converse.NewClient(
		converse.WithBaseURL(d.Config.Server.BaseURL),
		converse.WithAPIBaseURL(d.Config.Server.APIBaseURL),
		converse.WithDialTimeout(d.Config.Server.DialTimeout),
		converse.WithTimeout(d.Config.Server.HTTPTimeout),
		converse.WithLogger(d.Logger),
	)
}

// setupLogger logs to w so diagnostics never mix with the transcript.
func setupLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
