package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/recall/memory"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind            string
	port            int
	prefix          string
	profile         bool
	sessionTimeout  time.Duration
	settleDelay     time.Duration
	shuffleInterval time.Duration
	tileMargin      float64
	tlsCert         string
	tlsKey          string
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.settleDelay <= 0 {
		return fmt.Errorf("invalid settle delay (must be positive): %s", c.settleDelay)
	}
	if c.shuffleInterval <= 0 {
		return fmt.Errorf("invalid shuffle interval (must be positive): %s", c.shuffleInterval)
	}
	if c.tileMargin <= 0 {
		return fmt.Errorf("invalid tile margin (must be positive): %g", c.tileMargin)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) gameOptions() memory.Options {
	return memory.Options{
		SettleDelay:     c.settleDelay,
		ShuffleInterval: c.shuffleInterval,
		Margin:          c.tileMargin,
		Width:           defaultViewportWidth,
		Height:          defaultViewportHeight,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "recall",
		Short:         "A browser memory game: watch the numbers shuffle, then click them back in order.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RECALL_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: RECALL_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: RECALL_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: RECALL_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: RECALL_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.settleDelay, "settle-delay", memory.DefaultSettleDelay, "delay per tile before shuffling starts (env: RECALL_SETTLE_DELAY)")
	fs.DurationVar(&cfg.shuffleInterval, "shuffle-interval", memory.DefaultShuffleInterval, "time between shuffle passes (env: RECALL_SHUFFLE_INTERVAL)")
	fs.Float64Var(&cfg.tileMargin, "tile-margin", memory.DefaultMargin, "pixels reserved at the right and bottom edges for tile size (env: RECALL_TILE_MARGIN)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: RECALL_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: RECALL_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: RECALL_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: RECALL_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("recall v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
