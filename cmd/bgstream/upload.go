package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"bgstream/interfaces/go/client"
)

var applyUpload bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a custom background image to the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		c := client.New(cfg.ServiceHTTPURL)
		up, err := c.UploadBackground(ctx, filepath.Base(args[0]), f)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s\n", up.Filename, up.BackgroundID)
		if applyUpload && up.BackgroundID != "" {
			if err := c.SetBackground(ctx, up.BackgroundID); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "background set to %s\n", up.BackgroundID)
		}
		return nil
	},
}

var backgroundsCmd = &cobra.Command{
	Use:   "backgrounds",
	Short: "List the backgrounds known to the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		list, err := client.New(cfg.ServiceHTTPURL).ListBackgrounds(ctx)
		if err != nil {
			return describe(err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "current: %s\n", list.Current)
		for _, p := range list.Predefined {
			fmt.Fprintf(out, "  %-20s predefined\n", p)
		}
		for _, b := range list.Custom {
			fmt.Fprintf(out, "  %-20s %s (%s)\n", b.ID, b.Name, b.Type)
		}
		return nil
	},
}

// describe keeps the service's detail message as the error text.
func describe(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("service rejected request (%d): %s", apiErr.Status, apiErr.Detail)
	}
	logger.Debug().Err(err).Msg("request failed")
	return err
}

func init() {
	uploadCmd.Flags().BoolVar(&applyUpload, "apply", false, "switch to the uploaded background")
}
