package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"receipts/internal/app"
	"receipts/internal/config"
	"receipts/internal/domain"
	"receipts/internal/infra/logging"

	"github.com/spf13/cobra"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitError   = 2
)

type cli struct {
	configPath string
	logPath    string
	logLevel   string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, domain.ErrPolicyDenied) {
			fmt.Fprintf(stderr, "%v\n", err)
			return exitInvalid
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "receipt",
		Short:         "Generate, verify and audit tamper-evident receipts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (default $RECEIPT_CONFIG)")
	root.PersistentFlags().StringVar(&c.logPath, "log", "", "receipt log path (overrides config)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "diagnostic log level")

	root.AddCommand(
		c.generateCmd(),
		c.verifyCmd(),
		c.openCmd(),
		c.keygenCmd(),
		c.logCmd(),
	)
	return root
}

func (c *cli) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.logPath != "" {
		cfg.ReceiptLogPath = c.logPath
	}
	return cfg, nil
}

func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(c.logLevel, "console")
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readReceipts decodes consecutive JSON receipts from a file, a JSON-lines
// log, or stdin when path is "-".
func (c *cli) readReceipts(path string) ([]domain.Receipt, error) {
	var r io.Reader = c.stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	var out []domain.Receipt
	for {
		var receipt domain.Receipt
		err := dec.Decode(&receipt)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewSerializationError("decode receipt", err)
		}
		out = append(out, receipt)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no receipts in %s", domain.ErrInvalidReceipt, path)
	}
	return out, nil
}
