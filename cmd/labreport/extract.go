package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/labreport-extractor/internal/export"
	"github.com/joseph-ayodele/labreport-extractor/internal/ingest"
	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

var (
	extractOutDir  string
	extractFormat  string
	extractShowRaw bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Run one PDF through OCR, the model and the parser",
	Long: `Run one PDF through the pipeline and print the parsed record as JSON.

With --out-dir the record is also exported in the chosen --format. When the
model response cannot be parsed, the raw response is printed to stderr and
the command exits non-zero.

Examples:
  labreport extract report.pdf
  labreport extract report.pdf --out-dir exports --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(extractFormat)
		if err != nil {
			return err
		}
		doc, err := ingest.LoadDocument(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.proc.Process(cmd.Context(), doc)
		if err != nil {
			if pe, ok := labreport.AsParseError(err); ok {
				printParseError(cmd, pe)
			}
			return err
		}

		if extractShowRaw {
			fmt.Fprintln(cmd.ErrOrStderr(), res.RawResponse)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Record); err != nil {
			return err
		}

		if extractOutDir != "" {
			path, err := a.writeExport(res, extractOutDir, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		}
		if res.Cached {
			fmt.Fprintf(cmd.ErrOrStderr(), "cached result from %s\n", res.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractOutDir, "out-dir", "", "directory to write the export to")
	extractCmd.Flags().StringVar(&extractFormat, "format", "xlsx", "export format: xlsx, csv or txt")
	extractCmd.Flags().BoolVar(&extractShowRaw, "show-raw", false, "print the raw model response to stderr")
}

// printParseError shows the diagnostic fields of a rejected model response.
func printParseError(cmd *cobra.Command, pe *labreport.ParseError) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "parse failed: %s\n", pe.Kind)
	if pe.Candidate != "" {
		fmt.Fprintf(w, "--- fenced candidate ---\n%s\n", pe.Candidate)
	}
	fmt.Fprintf(w, "--- raw model response ---\n%s\n", pe.Raw)
}
