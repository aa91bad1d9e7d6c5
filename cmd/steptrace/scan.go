package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/steptrace/internal/config"
	"github.com/kalambet/steptrace/internal/dom"
	"github.com/kalambet/steptrace/internal/redact"
	"github.com/kalambet/steptrace/internal/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan <file.html|->",
	Short: "List the elements a saved page would show in its dom_state",
	Long: `Scan parses a saved HTML page and prints the ranked element summary the
recorder would attach to an observation of it. Geometry comes from inline
left, top, width and height styles. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = cfg.Recorder.ScanLimit
		}
		pageURL, _ := cmd.Flags().GetString("url")
		asJSON, _ := cmd.Flags().GetBool("json")

		in := io.Reader(os.Stdin)
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return scanPage(cmd.OutOrStdout(), in, scanOptions{
			URL:            pageURL,
			Limit:          limit,
			Viewport:       dom.Viewport{Width: float64(cfg.Browser.ViewportWidth), Height: float64(cfg.Browser.ViewportHeight)},
			SensitiveNames: cfg.Redaction.Patterns(),
			JSON:           asJSON,
		})
	},
}

type scanOptions struct {
	URL            string
	Limit          int
	Viewport       dom.Viewport
	SensitiveNames []string
	JSON           bool
}

func scanPage(w io.Writer, r io.Reader, opts scanOptions) error {
	doc, err := dom.ParseHTML(r, dom.ParseOptions{URL: opts.URL, Viewport: opts.Viewport})
	if err != nil {
		return err
	}
	state := scan.Scan(doc, opts.Limit, redact.New(opts.SensitiveNames))
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	if state.ElementsCount == 0 {
		printWarning("No interactable elements found")
		return nil
	}
	_, err = fmt.Fprintln(w, state.LLMRepresentation)
	return err
}

func init() {
	scanCmd.Flags().String("url", "", "url the page was saved from")
	scanCmd.Flags().Int("limit", 0, "maximum number of elements (default recorder.scan_limit)")
	scanCmd.Flags().Bool("json", false, "print the full dom_state as JSON")
}
