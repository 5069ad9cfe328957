// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/smartaudio/internal/vtx"
	"github.com/Thermoquad/smartaudio/pkg/smartaudio"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Read the current VTX settings",
	Long: `Send GET_SETTINGS and print the decoded response.

Output formats:
  text - human-readable, as in raw_log (default)
  json - machine-readable report
  yaml - machine-readable report`,
	Args: cobra.NoArgs,
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "text", "Output format: text, json or yaml")
}

// openClient opens the configured connection and starts a client on it.
// Closing the client closes the connection.
func openClient() (*vtx.Client, string, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}
	return vtx.NewClient(conn, clientOptions()...), connInfo, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	switch getOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", getOutput)
	}

	client, _, err := openClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout())
	defer cancel()

	settings, err := client.GetSettings(ctx)
	if err != nil {
		return err
	}
	return writeSettings(os.Stdout, settings, getOutput)
}

// writeSettings renders settings in the requested output format
func writeSettings(w io.Writer, s smartaudio.Settings, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(smartaudio.NewSettingsReport(s))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(smartaudio.NewSettingsReport(s)); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintf(w, "%s (0x%02X)\n%s", smartaudio.FormatResponseName(s.ResponseCode()), s.ResponseCode(), smartaudio.FormatResponseDetails(s))
		if err != nil {
			return err
		}
		for _, v := range smartaudio.ValidateResponse(s) {
			if _, err := fmt.Fprintf(w, "  WARNING:   %s\n", v.Message); err != nil {
				return err
			}
		}
		return nil
	}
}
