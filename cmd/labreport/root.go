package main

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	storeDSN string
	noStore  bool
)

var rootCmd = &cobra.Command{
	Use:   "labreport",
	Short: "Extract structured records from PDF laboratory reports",
	Long: `labreport turns PDF laboratory analysis reports into structured records.

Each document goes through OCR (Mistral OCR or a local pdftotext pass), a chat
completion that is asked for a fenced JSON object, and a strict parser that
either yields a schema-conformant record or reports why the model response
was unusable. Records can be exported as XLSX, CSV or plain text.

Configuration is read from labreport.yaml (. or ~/.labreport), a .env file
and the environment, in increasing order of precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./labreport.yaml or ~/.labreport/labreport.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&storeDSN, "store", "", "extraction history DSN, overrides STORE_DSN (postgres:// URL or SQLite path)",
	)
	rootCmd.PersistentFlags().BoolVar(
		&noStore, "no-store", false, "do not record extraction history",
	)

	rootCmd.AddCommand(serveCmd, extractCmd, parseCmd, batchCmd, watchCmd, historyCmd, dbCmd, versionCmd)
}
