package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"receipts/internal/domain"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type cliEnv struct {
	dir     string
	config  string
	logPath string
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	code, out, errOut := runCLI(t, "", "keygen", "--kid", "cli-test")
	require.Equal(t, exitOK, code, errOut)
	var key keygenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &key))
	require.Len(t, key.SeedHex, 64)

	logPath := filepath.Join(dir, "receipts.jsonl")
	raw, err := yaml.Marshal(map[string]any{
		"receipt_log_path":             logPath,
		"signing_kid":                  "cli-test",
		"signing_private_key_seed_hex": key.SeedHex,
		"seal_secret_hex":              strings.Repeat("5a", 32),
		"seal_threshold":               0.0,
	})
	require.NoError(t, err)
	configPath := filepath.Join(dir, "receipts.yaml")
	require.NoError(t, os.WriteFile(configPath, raw, 0o600))
	return cliEnv{dir: dir, config: configPath, logPath: logPath}
}

func (e cliEnv) run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	return runCLI(t, stdin, append([]string{"--config", e.config}, args...)...)
}

func TestCLI_GenerateVerifyOpen(t *testing.T) {
	env := newCLIEnv(t)

	code, out, errOut := env.run(t, "", "generate", "--a", "Alice", "--b", "Bob", "--consent", "--identity", "heir=Alice")
	require.Equal(t, exitOK, code, errOut)
	var receipt domain.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Regexp(t, `^[0-9a-f]{64}$`, receipt.Hash)
	require.Equal(t, "cli-test", receipt.KID)
	require.Equal(t, "Alice", receipt.Identity["heir"])

	logged, err := os.ReadFile(env.logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(logged)), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], receipt.Hash)

	code, out, errOut = env.run(t, "", "verify", env.logPath)
	require.Equal(t, exitOK, code, errOut)
	var result domain.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.True(t, result.Valid)

	tampered := receipt
	tampered.Hash = strings.Repeat("f", 64)
	raw, err := json.Marshal(tampered)
	require.NoError(t, err)
	code, out, errOut = env.run(t, string(raw), "verify", "-")
	require.Equal(t, exitInvalid, code)
	require.Contains(t, out, "HASH_MISMATCH")
	require.Contains(t, errOut, "1 of 1 receipts rejected: "+domain.ErrPolicyDenied.Error())

	code, out, errOut = env.run(t, "", "open", env.logPath)
	require.Equal(t, exitOK, code, errOut)
	var view domain.HashedView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, receipt.ID, view.ID)
	require.Equal(t, "Bob", view.SubjectB)
}

func TestCLI_LogScanAndCheckpoint(t *testing.T) {
	env := newCLIEnv(t)
	for _, consent := range []string{"--consent=true", "--consent=false"} {
		code, _, errOut := env.run(t, "", "generate", "--a", "x", "--b", "y", consent)
		require.Equal(t, exitOK, code, errOut)
	}
	f, err := os.OpenFile(env.logPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	code, out, _ := env.run(t, "", "log", "scan")
	require.Equal(t, exitOK, code)
	var stats scanOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 3, stats.Lines)
	require.Equal(t, 2, stats.Receipts)
	require.Equal(t, 1, stats.Malformed)

	code, out, errOut := env.run(t, "", "log", "scan", "--verify")
	require.Equal(t, exitInvalid, code)
	require.Contains(t, errOut, "CONSENT_MISSING")
	require.Contains(t, errOut, domain.ErrPolicyDenied.Error())
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 2, stats.Verified)
	require.Equal(t, 1, stats.Invalid)

	code, out, errOut = env.run(t, "", "log", "checkpoint")
	require.Equal(t, exitOK, code, errOut)
	var cp checkpointOutput
	require.NoError(t, json.Unmarshal([]byte(out), &cp))
	require.EqualValues(t, 2, cp.Size)
	require.Len(t, cp.RootHash, 64)
	require.NotEmpty(t, cp.Signature)
}

func TestCLI_KeygenWritesFiles(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "signing.seed")
	secretPath := filepath.Join(dir, "seal.secret")
	code, out, errOut := runCLI(t, "", "keygen", "--alg", "ml-dsa-65", "--out", seedPath, "--seal-secret-out", secretPath)
	require.Equal(t, exitOK, code, errOut)

	var key keygenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &key))
	require.Equal(t, domain.SigAlgMLDSA65, key.Alg)
	require.Empty(t, key.SeedHex)
	require.NotEmpty(t, key.KID)

	for _, path := range []string{seedPath, secretPath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
	secret, err := os.ReadFile(secretPath)
	require.NoError(t, err)
	require.Len(t, strings.TrimSpace(string(secret)), 64)
}

func TestCLI_Errors(t *testing.T) {
	env := newCLIEnv(t)

	code, _, errOut := env.run(t, "", "generate", "--a", "x")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "required")

	code, _, errOut = env.run(t, "", "generate", "--a", "x", "--b", "y", "--scorer", "runes")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "invalid receipt")

	code, _, _ = env.run(t, "{not json", "verify", "-")
	require.Equal(t, exitError, code)

	code, _, _ = runCLI(t, "", "keygen", "--alg", "rsa")
	require.Equal(t, exitError, code)

	_, err := os.Stat(env.logPath)
	if err == nil {
		logged, readErr := os.ReadFile(env.logPath)
		require.NoError(t, readErr)
		require.Empty(t, strings.TrimSpace(string(logged)))
	}
}
