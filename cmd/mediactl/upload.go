package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/mediakit/pkg/media"
)

type uploadFlags struct {
	folder      string
	name        string
	prefix      string
	sequential  bool
	concurrency int
	progress    bool
}

func newUploadCommand(c *cli) *cobra.Command {
	var f uploadFlags
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Validate, name and upload files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.name != "" && len(args) > 1 {
				return errors.New("--name applies to a single file, use --prefix for batches")
			}
			provider, err := c.selectedProvider()
			if err != nil {
				return err
			}
			u, err := c.uploaderFor(cmd.Context())
			if err != nil {
				return err
			}

			reqs := make([]media.Request, 0, len(args))
			for _, path := range args {
				lf, err := readLocalFile(path)
				if err != nil {
					return err
				}
				req := lf.request(f.folder, provider)
				req.CustomName = f.name
				if f.progress {
					req.OnProgress = progressPrinter(cmd.ErrOrStderr(), lf.name)
				}
				reqs = append(reqs, req)
			}

			results := u.UploadMany(cmd.Context(), reqs, media.BatchOptions{
				Sequential:     f.sequential,
				NamePrefix:     f.prefix,
				MaxConcurrency: f.concurrency,
			})

			if c.jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printResults(cmd.OutOrStdout(), args, results)
			}

			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d uploads failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.folder, "folder", "f", "", "destination folder (default from MEDIA_DEFAULT_FOLDER)")
	cmd.Flags().StringVar(&f.name, "name", "", "custom name for a single file")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "name batch items {prefix}-{n}{ext}")
	cmd.Flags().BoolVar(&f.sequential, "sequential", false, "upload one file at a time")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 4, "parallel uploads, 0 for unbounded")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "print chunk progress for resumable uploads")
	return cmd
}

func progressPrinter(w io.Writer, name string) media.ProgressFunc {
	return func(ev media.ProgressEvent) {
		fmt.Fprintf(w, "%s %s/%s (%.0f%%)\n", gray(name), humanSize(ev.BytesTransferred), humanSize(ev.TotalBytes), ev.Fraction*100)
	}
}
