package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaultbay/vaultbay/pkg/keyrelease"
)

var (
	accessListing string
	accessOut     string
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Download and decrypt a listing you hold a valid pass for",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		address, err := client.Address()
		if err != nil {
			return err
		}

		plaintext, err := client.Access(cmd.Context(), accessListing, address)
		if err != nil {
			var entErr *keyrelease.EntitlementError
			if errors.As(err, &entErr) {
				return fmt.Errorf("no valid entitlement pass for listing %s: rent access first or wait for renewal", accessListing)
			}
			return err
		}

		if accessOut == "-" {
			_, err = os.Stdout.Write(plaintext)
			return err
		}
		if err := os.WriteFile(accessOut, plaintext, 0o600); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", len(plaintext), accessOut)
		return nil
	},
}

func init() {
	accessCmd.Flags().StringVar(&accessListing, "listing", "", "listing object ID")
	accessCmd.Flags().StringVar(&accessOut, "out", "-", "output file, or - for stdout")
	accessCmd.MarkFlagRequired("listing")
	rootCmd.AddCommand(accessCmd)
}
