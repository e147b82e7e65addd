// Command mediactl validates, uploads, lists and deletes media through the
// configured providers.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/mediakit/pkg/config"
	"github.com/dmitrymomot/mediakit/pkg/logger"
	"github.com/dmitrymomot/mediakit/pkg/media"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&cli{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}

// cli holds state shared by the subcommands.
type cli struct {
	envFile  string
	provider string
	jsonOut  bool
	verbose  bool

	cfg      config.App
	log      *slog.Logger
	uploader *media.Uploader
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "mediactl",
		Short: "Upload and manage storefront media",
		Long: `mediactl drives the media uploader from the command line.

Providers and limits come from the environment (see .env.example):
  mediactl check photo.png               # validate without uploading
  mediactl upload photo.png -f products  # upload to products/
  mediactl upload *.jpg --prefix shirt   # batch, named shirt-1.jpg ...
  mediactl list products
  mediactl delete products/shirt-1.jpg`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "load variables from this file instead of ./.env")
	root.PersistentFlags().StringVarP(&c.provider, "provider", "p", "", "provider: relay, storage or legacy (default from MEDIA_DEFAULT_PROVIDER)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(
		newCheckCommand(c),
		newUploadCommand(c),
		newListCommand(c),
		newDeleteCommand(c),
	)
	return root
}

// init loads configuration once. A preset uploader is kept.
func (c *cli) init(stderr io.Writer) error {
	if c.uploader != nil {
		return nil
	}
	if c.envFile != "" {
		if err := config.LoadEnvFile(c.envFile); err != nil {
			return err
		}
	}
	if err := config.Load(&c.cfg); err != nil {
		return err
	}

	level := "warn"
	if c.verbose {
		level = "debug"
	}
	c.log = logger.New(
		logger.WithFormat(logger.FormatText),
		logger.WithLevelName(level),
		logger.WithOutput(stderr),
	)
	return nil
}

// uploaderFor builds the uploader on first use so check never touches providers.
func (c *cli) uploaderFor(ctx context.Context) (*media.Uploader, error) {
	if c.uploader == nil {
		u, err := c.cfg.Uploader(ctx, c.log)
		if err != nil {
			return nil, err
		}
		c.uploader = u
	}
	return c.uploader, nil
}

func (c *cli) selectedProvider() (media.Provider, error) {
	if c.provider == "" {
		return "", nil
	}
	p, ok := media.ParseProvider(c.provider)
	if !ok {
		return "", fmt.Errorf("unknown provider %q", c.provider)
	}
	return p, nil
}

// policy returns the uploader policy when one is preset, else the configured one.
func (c *cli) policy() (media.Policy, error) {
	if c.uploader != nil {
		return c.uploader.Policy(), nil
	}
	return c.cfg.Media.Policy()
}
