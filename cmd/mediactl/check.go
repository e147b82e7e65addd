package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/mediakit/pkg/media"
)

type checkReport struct {
	File    string                  `json:"file"`
	Outcome media.ValidationOutcome `json:"outcome"`
}

func newCheckCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Report every policy violation without uploading",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := c.policy()
			if err != nil {
				return err
			}

			reports := make([]checkReport, 0, len(args))
			failed := 0
			for _, path := range args {
				f, err := readLocalFile(path)
				if err != nil {
					return err
				}
				out := policy.Check(media.FileInfo{Name: f.name, Size: int64(len(f.body)), MIMEType: f.mimeType})
				if !out.Passed {
					failed++
				}
				reports = append(reports, checkReport{File: path, Outcome: out})
			}

			w := cmd.OutOrStdout()
			if c.jsonOut {
				if err := writeJSON(w, reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					if r.Outcome.Passed {
						fmt.Fprintf(w, "%s %s\n", green("ok"), r.File)
						continue
					}
					fmt.Fprintf(w, "%s %s\n", red("invalid"), r.File)
					for _, v := range r.Outcome.Violations {
						fmt.Fprintf(w, "  %s: %s\n", v.Constraint, v.Reason)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
}
