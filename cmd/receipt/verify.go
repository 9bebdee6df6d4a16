package main

import (
	"fmt"

	"receipts/internal/domain"
	"receipts/internal/infra/crypto"
	"receipts/internal/usecase"

	"github.com/spf13/cobra"
)

func (c *cli) verifyCmd() *cobra.Command {
	var publicKey string
	cmd := &cobra.Command{
		Use:   "verify <file|->",
		Short: "Recompute hashes, check signatures and apply the verification policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key []byte
			if publicKey != "" {
				decoded, err := crypto.DecodePublicKey(publicKey)
				if err != nil {
					return err
				}
				key = decoded
			}
			receipts, err := c.readReceipts(args[0])
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			invalid := 0
			for _, r := range receipts {
				result, err := a.Verify.Execute(cmd.Context(), usecase.VerifyReceiptRequest{Receipt: r, PublicKey: key})
				if err != nil {
					return err
				}
				if !result.Valid {
					invalid++
				}
				if err := c.printJSON(result); err != nil {
					return err
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d receipts rejected: %w", invalid, len(receipts), domain.ErrPolicyDenied)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "verification key, hex or base64 (default: configured signing key)")
	return cmd
}

func (c *cli) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <file|->",
		Short: "Decrypt sealed receipts with the configured seal secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receipts, err := c.readReceipts(args[0])
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			for _, r := range receipts {
				view, err := a.Open.Execute(r)
				if err != nil {
					return err
				}
				if err := c.printJSON(view); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
