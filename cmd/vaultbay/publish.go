package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	publishFile  string
	publishPrice uint64
	publishSlope uint64
	publishMime  string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Encrypt a file, store it on the fanout and print the anchoring transaction",
	Long: `Encrypts the file under the key-release policy, uploads the ciphertext
to the storage fanout and prints the create-listing transaction to sign
and submit through your wallet. Nothing touches the ledger until that
transaction executes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(publishFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", publishFile, err)
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Publish(cmd.Context(), content)
		if err != nil {
			return err
		}

		gateway, err := client.Ledger()
		if err != nil {
			return err
		}
		tx, err := gateway.BuildCreateListingTx(result.BlobID, result.KeyHash, publishPrice, publishSlope, publishMime)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]interface{}{
			"blobId":            result.BlobID,
			"keyDerivationHash": result.KeyHash,
			"transaction":       tx,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishFile, "file", "", "file to publish")
	publishCmd.Flags().Uint64Var(&publishPrice, "price", 0, "base rental price")
	publishCmd.Flags().Uint64Var(&publishSlope, "slope", 0, "price increase per active rental")
	publishCmd.Flags().StringVar(&publishMime, "mime", "application/octet-stream", "MIME type of the content")
	publishCmd.MarkFlagRequired("file")
	publishCmd.MarkFlagRequired("price")
	rootCmd.AddCommand(publishCmd)
}
