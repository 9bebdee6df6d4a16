package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"receipts/internal/domain"
	"receipts/internal/usecase"

	"github.com/spf13/cobra"
)

type scanOutput struct {
	domain.LogStats
	Verified int `json:"verified,omitempty"`
	Invalid  int `json:"invalid,omitempty"`
}

type checkpointOutput struct {
	Size      int64  `json:"size"`
	RootHash  string `json:"root_hash"`
	IssuedAt  string `json:"issued_at"`
	KID       string `json:"kid,omitempty"`
	SigAlg    string `json:"sig_alg,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (c *cli) logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the receipt log",
	}
	cmd.AddCommand(c.logScanCmd(), c.logCheckpointCmd(), c.logTailCmd())
	return cmd
}

func (c *cli) logScanCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Count well-formed and malformed lines, optionally verifying every receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var out scanOutput
			stats, err := a.Log.Scan(cmd.Context(), func(e domain.LogEntry) error {
				if !verify {
					return nil
				}
				result, err := a.Verify.Execute(cmd.Context(), usecase.VerifyReceiptRequest{Receipt: e.Receipt})
				if err != nil {
					return err
				}
				out.Verified++
				if !result.Valid {
					out.Invalid++
					fmt.Fprintf(c.stderr, "offset %d: receipt %s invalid: %v\n", e.Offset, e.Receipt.Hash, result.DenyCodes())
				}
				return nil
			})
			if err != nil {
				return err
			}
			out.LogStats = stats
			if err := c.printJSON(out); err != nil {
				return err
			}
			if out.Invalid > 0 {
				return fmt.Errorf("%d of %d receipts rejected: %w", out.Invalid, out.Verified, domain.ErrPolicyDenied)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "verify every receipt against the configured key and policy")
	return cmd
}

func (c *cli) logCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Print the Merkle checkpoint over the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			cp, err := a.Checkpoint.Checkpoint(cmd.Context())
			if err != nil {
				return err
			}
			out := checkpointOutput{
				Size:     cp.Size,
				RootHash: hex.EncodeToString(cp.RootHash),
				IssuedAt: cp.IssuedAt.UTC().Format(time.RFC3339),
				KID:      cp.KID,
				SigAlg:   cp.SigAlg,
			}
			if len(cp.Signature) > 0 {
				out.Signature = base64.StdEncoding.EncodeToString(cp.Signature)
			}
			return c.printJSON(out)
		},
	}
}

func (c *cli) logTailCmd() *cobra.Command {
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream receipts as they are appended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			var from int64
			if !fromStart {
				info, err := os.Stat(a.Log.Path())
				if err != nil {
					return err
				}
				from = info.Size()
			}
			return a.Log.Follow(cmd.Context(), from, func(e domain.LogEntry) error {
				_, err := fmt.Fprintf(c.stdout, "%s\n", e.Raw)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay existing receipts before following")
	return cmd
}
