package main

import (
	"receipts/internal/usecase"

	"github.com/spf13/cobra"
)

func (c *cli) generateCmd() *cobra.Command {
	var (
		subjectA string
		subjectB string
		consent  bool
		scorer   string
		identity map[string]string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Score two subjects and append a receipt to the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req := usecase.GenerateReceiptRequest{
				SubjectA: subjectA,
				SubjectB: subjectB,
				Consent:  consent,
				Scorer:   scorer,
			}
			if len(identity) > 0 {
				req.Identity = make(map[string]any, len(identity))
				for k, v := range identity {
					req.Identity[k] = v
				}
			}
			receipt, err := a.Generate.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.printJSON(receipt)
		},
	}
	cmd.Flags().StringVar(&subjectA, "a", "", "first subject (text or comma separated numbers)")
	cmd.Flags().StringVar(&subjectB, "b", "", "second subject")
	cmd.Flags().BoolVar(&consent, "consent", false, "record consent")
	cmd.Flags().StringVar(&scorer, "scorer", "", "scorer name (default from config)")
	cmd.Flags().StringToStringVar(&identity, "identity", nil, "identity fields as key=value pairs")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}
