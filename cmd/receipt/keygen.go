package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"receipts/internal/infra/crypto"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
)

type keygenOutput struct {
	Alg        string `json:"alg"`
	KID        string `json:"kid"`
	PublicKey  string `json:"public_key"`
	SeedFile   string `json:"seed_file,omitempty"`
	SeedHex    string `json:"seed_hex,omitempty"`
	SecretFile string `json:"seal_secret_file,omitempty"`
}

func (c *cli) keygenCmd() *cobra.Command {
	var (
		alg       string
		kid       string
		out       string
		secretOut string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a signing key seed and optionally a seal secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, seed, err := crypto.GenerateSigner(alg, kid, rand.Reader)
			if err != nil {
				return err
			}
			result := keygenOutput{
				Alg:       signer.Alg(),
				KID:       signer.KID(),
				PublicKey: base64.StdEncoding.EncodeToString(signer.PublicKey()),
			}
			if out != "" {
				if err := writeSecretFile(out, seed); err != nil {
					return err
				}
				result.SeedFile = out
			} else {
				result.SeedHex = hex.EncodeToString(seed)
			}
			if secretOut != "" {
				secret := make([]byte, 32)
				if _, err := io.ReadFull(rand.Reader, secret); err != nil {
					return err
				}
				if err := writeSecretFile(secretOut, secret); err != nil {
					return err
				}
				result.SecretFile = secretOut
			}
			return c.printJSON(result)
		},
	}
	cmd.Flags().StringVar(&alg, "alg", "ed25519", "signature algorithm (ed25519, ml-dsa-65)")
	cmd.Flags().StringVar(&kid, "kid", "", "key id (default derived from the public key)")
	cmd.Flags().StringVar(&out, "out", "", "write the hex seed to this file instead of stdout")
	cmd.Flags().StringVar(&secretOut, "seal-secret-out", "", "also write a random 32 byte hex seal secret to this file")
	return cmd
}

// writeSecretFile atomically replaces path with hex encoded material.
func writeSecretFile(path string, material []byte) error {
	data := []byte(hex.EncodeToString(material) + "\n")
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
