package main

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chatwidget/internal/config"
	"github.com/zhouzirui/chatwidget/internal/logging"
)

type rootOptions struct {
	apiKey    string
	streamURL string
	uploadURL string
	configURL string
	logLevel  string
	timeout   time.Duration

	widget config.WidgetConfig
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "widgetctl",
		Short:         "Talk to a chat widget answering service from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.apiKey, "api-key", "", "credential sent as X-Api-Key (default WIDGET_API_KEY)")
	flags.StringVar(&opts.streamURL, "stream-url", "", "answering service stream endpoint (default WIDGET_STREAM_URL)")
	flags.StringVar(&opts.uploadURL, "upload-url", "", "upload endpoint; empty keeps attachments local (default WIDGET_UPLOAD_URL)")
	flags.StringVar(&opts.configURL, "config-url", "", "bot config endpoint (default WIDGET_CONFIG_URL)")
	flags.StringVar(&opts.logLevel, "log-level", "", "zerolog level (default LOG_LEVEL)")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up after this long")

	root.AddCommand(newAskCmd(opts), newInfoCmd(opts))
	return root
}

// load reads the environment and lets explicit flags win over it.
func (o *rootOptions) load(cmd *cobra.Command) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logging.SetupWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"}, level)

	w := cfg.Widget
	if o.apiKey != "" {
		w.APIKey = o.apiKey
	}
	if o.streamURL != "" {
		w.StreamURL = o.streamURL
	}
	if o.uploadURL != "" {
		w.UploadURL = o.uploadURL
	}
	if o.configURL != "" {
		w.ConfigURL = o.configURL
	}
	o.widget = w
	return nil
}
