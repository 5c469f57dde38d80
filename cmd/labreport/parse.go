package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/labreport-extractor/internal/labreport"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Parse a saved model response into a record",
	Long: `Parse a raw model response, read from a file or stdin, and print the
record as JSON. No OCR or model backend is contacted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if len(args) == 0 || args[0] == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		rec, err := labreport.Parse(string(raw))
		if err != nil {
			if pe, ok := labreport.AsParseError(err); ok {
				printParseError(cmd, pe)
			}
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}
