package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/altcord/flock"
	"github.com/altcord/flock/util"
)

func newRunCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect every configured account and stream events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (default flock.yaml in the working directory)")
	return cmd
}

type config struct {
	Tokens     []string `mapstructure:"tokens"`
	APIVersion int      `mapstructure:"api_version"`
	Debug      bool     `mapstructure:"debug"`
	Trace      bool     `mapstructure:"trace"`

	Presence struct {
		Name     string `mapstructure:"name"`
		Details  string `mapstructure:"details"`
		Type     int    `mapstructure:"type"`
		Status   string `mapstructure:"status"`
		Platform string `mapstructure:"platform"`
	} `mapstructure:"presence"`
}

func loadConfig(path string) (*config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flock")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("FLOCK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}

	cfg := &config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if len(cfg.Tokens) == 0 {
		return nil, errors.New("no tokens configured, set tokens in flock.yaml or FLOCK_TOKENS")
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg *config) error {
	opts := flock.Options{
		APIVersion: cfg.APIVersion,
		Debug:      cfg.Debug,
	}
	if cfg.Trace {
		opts.Debugger = util.StderrDebugger{}
	}
	if cfg.Presence.Name != "" {
		opts.Presence = &flock.Presence{
			Name:     cfg.Presence.Name,
			Details:  cfg.Presence.Details,
			Type:     flock.ActivityType(cfg.Presence.Type),
			Status:   flock.ActivityStatus(cfg.Presence.Status),
			Platform: flock.ActivityPlatform(cfg.Presence.Platform),
		}
	}

	client, err := flock.New(opts)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Login(ctx, cfg.Tokens...); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	err = client.OnDefault(flock.EventMessageCreate, func(d flock.Dispatch) {
		author := jsoniter.Get(d.Data, "author", "username").ToString()
		content := jsoniter.Get(d.Data, "content").ToString()
		channel := jsoniter.Get(d.Data, "channel_id").ToString()
		fmt.Fprintf(out, "[%s] #%s %s: %s\n", d.Account.Username, channel, author, content)
	})
	if err != nil {
		return err
	}

	return client.Run(ctx)
}
