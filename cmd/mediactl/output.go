package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/dmitrymomot/mediakit/pkg/media"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func humanSize(n int64) string { return units.HumanSize(float64(n)) }

// printResults writes one line per result, in input order.
func printResults(w io.Writer, files []string, results []media.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for i, r := range results {
		if r.Success {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", green("ok"), files[i], r.URL, gray(humanSize(r.Size)))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", red("failed"), files[i], r.Err.Kind, r.Err.Message)
	}
}

func printListing(w io.Writer, l *media.Listing) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	for _, f := range l.Folders {
		fmt.Fprintf(tw, "%s\t%s\n", bold(f.Path), gray("-"))
	}
	for _, o := range l.Files {
		modified := "-"
		if !o.LastModified.IsZero() {
			modified = o.LastModified.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Path, humanSize(o.Size), gray(modified))
	}
}
