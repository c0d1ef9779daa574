package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/sapliy/staff-notify/internal/notification"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Download acknowledgement responses as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, name, err := newClient().ExportCSV(args[0])
		if err != nil {
			return err
		}

		switch {
		case exportOutput == "-":
			_, err := os.Stdout.Write(body)
			return err
		case exportOutput != "":
			name = exportOutput
		default:
			name = exportFilename(name, args[0])
		}

		if err := os.WriteFile(name, body, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		fmt.Printf("Exported responses to %s\n", name)
		return nil
	},
}

// filenameFromDisposition extracts the filename parameter of a
// Content-Disposition header, or "" when absent.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// exportFilename keeps only the final element of the server supplied name
// so a download never lands outside the working directory. It falls back to
// a name derived from id.
func exportFilename(serverName, id string) string {
	name := filepath.Base(strings.ReplaceAll(serverName, `\`, "/"))
	switch name {
	case ".", "..", string(filepath.Separator):
		return notification.ExportFilename(id)
	}
	return name
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, or - for stdout")
	rootCmd.AddCommand(exportCmd)
}
