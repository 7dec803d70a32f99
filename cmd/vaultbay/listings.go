package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "List marketplace listings with their current display price",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		gateway, err := client.Ledger()
		if err != nil {
			return err
		}

		listings := gateway.FetchListings(cmd.Context())
		if len(listings) == 0 {
			fmt.Println("no listings found")
			return nil
		}
		for _, l := range listings {
			state := "active"
			if !l.Active {
				state = "paused"
			}
			fmt.Printf("%s  %s  price=%d  rentals=%d  %s\n",
				l.ID, state, l.CurrentPrice(), l.ActiveRentals, l.MimeType)
		}
		return nil
	},
}

var passesAddress string

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "List entitlement passes owned by an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		address := passesAddress
		if address == "" {
			if address, err = client.Address(); err != nil {
				return err
			}
		}

		gateway, err := client.Ledger()
		if err != nil {
			return err
		}

		passes := gateway.FetchUserEntitlementPasses(cmd.Context(), address)
		if len(passes) == 0 {
			fmt.Printf("no passes owned by %s\n", address)
			return nil
		}
		now := time.Now()
		for _, p := range passes {
			state := "expired"
			if p.Valid(now) {
				state = "valid"
			}
			fmt.Printf("%s  listing=%s  %s  expires=%s\n",
				p.ID, p.ListingID, state,
				time.UnixMilli(int64(p.ExpiresAtMs)).Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	passesCmd.Flags().StringVar(&passesAddress, "address", "", "owner address (defaults to the local identity)")
	rootCmd.AddCommand(listingsCmd)
	rootCmd.AddCommand(passesCmd)
}
