package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"receipts/internal/config"
	"receipts/internal/domain"
	"receipts/internal/infra/crypto"
	"receipts/internal/infra/merkle"
	"receipts/internal/infra/metrics"
	"receipts/internal/infra/policyopa"
	"receipts/internal/infra/ratelimit"
	"receipts/internal/infra/receiptlog"
	"receipts/internal/infra/score"
	"receipts/internal/usecase"

	"github.com/gin-gonic/gin"
)

type testServer struct {
	server *Server
	log    *receiptlog.Store
	signer domain.Signer
}

func newTestServer(t *testing.T, cfg config.Config, limiter domain.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := receiptlog.Open(filepath.Join(t.TempDir(), "receipts.jsonl"), receiptlog.Options{})
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	signer, _, err := crypto.GenerateSigner(domain.SigAlgEd25519, "http-test", nil)
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	sealer, err := crypto.NewEphemeralSealer()
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	engine, err := policyopa.NewDefaultEngine(context.Background())
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	cryptoSvc := crypto.NewService()
	key := &domain.PublicKey{Alg: signer.Alg(), KID: signer.KID(), PublicKey: signer.PublicKey()}
	m := metrics.New()

	srv := NewServer(cfg, ServerDeps{
		Generate: &usecase.GenerateReceipt{
			Log:           store,
			Crypto:        cryptoSvc,
			Signer:        signer,
			Sealer:        sealer,
			Scorers:       score.ByName,
			DefaultScorer: score.DefaultName,
			HashAlg:       domain.HashAlgSHA256,
			SealThreshold: 0,
			Metrics:       m,
		},
		Verify: &usecase.VerifyReceipt{
			Crypto:  cryptoSvc,
			Policy:  engine,
			Key:     key,
			Metrics: m,
		},
		Checkpoint: &usecase.LogCheckpoint{
			Log:    store,
			Crypto: cryptoSvc,
			Merkle: merkle.Service{},
			Signer: signer,
		},
		SigningKey:  key,
		RateLimiter: limiter,
		Metrics:     m,
	})
	return &testServer{server: srv, log: store, signer: signer}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)

	w := ts.do(t, http.MethodPost, "/v1/receipts", map[string]any{
		"subject_a": "Alice",
		"subject_b": "Bob",
		"consent":   true,
		"identity":  map[string]any{"heir": "Alice", "parcel": 7},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("generate status %d: %s", w.Code, w.Body.String())
	}
	receipt := decodeBody[domain.Receipt](t, w)
	if len(receipt.Hash) != 64 || !receipt.Signed() || !receipt.Sealed() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	w = ts.do(t, http.MethodPost, "/v1/receipts/verify", map[string]any{"receipt": receipt}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify status %d: %s", w.Code, w.Body.String())
	}
	if result := decodeBody[domain.VerificationResult](t, w); !result.Valid {
		t.Fatalf("expected valid receipt, got %+v", result)
	}

	tampered := receipt
	tampered.Hash = strings.Repeat("0", 64)
	w = ts.do(t, http.MethodPost, "/v1/receipts/verify", map[string]any{"receipt": tampered}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify tampered status %d", w.Code)
	}
	result := decodeBody[domain.VerificationResult](t, w)
	if result.Valid || result.HashValid {
		t.Fatalf("expected invalid result, got %+v", result)
	}

	w = ts.do(t, http.MethodGet, "/v1/receipts/"+receipt.Hash, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}
	if got := decodeBody[domain.Receipt](t, w); got.ID != receipt.ID {
		t.Fatalf("get returned %q, want %q", got.ID, receipt.ID)
	}
}

func TestGenerateAcceptsNumericSubjects(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	w := ts.do(t, http.MethodPost, "/v1/receipts", `{"subject_a":[1,2,3.5],"subject_b":[3,2,1],"consent":true,"scorer":"entropy"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	receipt := decodeBody[domain.Receipt](t, w)
	if receipt.SubjectA != "1,2,3.5" || receipt.Scorer != "entropy" {
		t.Fatalf("unexpected receipt subjects %q scorer %q", receipt.SubjectA, receipt.Scorer)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	cases := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: `{"subject_a":`, code: "INVALID_JSON"},
		{name: "object subject", body: `{"subject_a":{"x":1},"subject_b":"b"}`, code: "INVALID_JSON"},
		{name: "missing subject", body: `{"subject_a":"a"}`, code: "INVALID_REQUEST"},
		{name: "unknown scorer", body: `{"subject_a":"a","subject_b":"b","scorer":"tarot"}`, code: "INVALID_RECEIPT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/receipts", tc.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", w.Code, w.Body.String())
			}
			if resp := decodeBody[errorResponse](t, w); resp.Code != tc.code {
				t.Fatalf("code %q, want %q", resp.Code, tc.code)
			}
		})
	}
	if n, err := ts.log.Count(context.Background()); err != nil || n != 0 {
		t.Fatalf("expected empty log, got %d (%v)", n, err)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIKey = "s3cret"
	ts := newTestServer(t, cfg, nil)
	body := map[string]any{"subject_a": "a", "subject_b": "b", "consent": true}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			if w := ts.do(t, http.MethodPost, "/v1/receipts", body, headers); w.Code != tc.want {
				t.Fatalf("status %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestListAndNotFound(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	for i := 0; i < 3; i++ {
		if w := ts.do(t, http.MethodPost, "/v1/receipts", map[string]any{"subject_a": "a", "subject_b": "b"}, nil); w.Code != http.StatusCreated {
			t.Fatalf("generate %d: %d", i, w.Code)
		}
	}
	w := ts.do(t, http.MethodGet, "/v1/receipts?offset=1&limit=1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status %d", w.Code)
	}
	page := decodeBody[listResponse](t, w)
	if page.Total != 3 || len(page.Receipts) != 1 || page.Offset != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	if w := ts.do(t, http.MethodGet, "/v1/receipts?limit=-1", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/v1/receipts/"+strings.Repeat("ab", 32), nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/v1/receipts/not-hex", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-hex hash, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/v1/nowhere", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", w.Code)
	}
}

// partialIndex holds only the receipts it was given, like an index that
// missed writes made outside the daemon.
type partialIndex struct {
	receipts []domain.Receipt
}

func (p *partialIndex) Index(context.Context, domain.Receipt, int64, []byte) error {
	return nil
}

func (p *partialIndex) GetByHash(_ context.Context, hash string) (domain.Receipt, error) {
	for _, r := range p.receipts {
		if r.Hash == hash {
			return r, nil
		}
	}
	return domain.Receipt{}, domain.ErrNotFound
}

func (p *partialIndex) List(context.Context, int, int) ([]domain.Receipt, int, error) {
	return p.receipts, len(p.receipts), nil
}

func TestListReadsLogWhenIndexLags(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	var hashes []string
	for i := 0; i < 3; i++ {
		w := ts.do(t, http.MethodPost, "/v1/receipts", map[string]any{"subject_a": "a", "subject_b": "b"}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("generate %d: %d", i, w.Code)
		}
		hashes = append(hashes, decodeBody[domain.Receipt](t, w).Hash)
	}
	first, err := ts.log.Find(context.Background(), hashes[0])
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	ts.server.index = &partialIndex{receipts: []domain.Receipt{first}}

	w := ts.do(t, http.MethodGet, "/v1/receipts", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status %d", w.Code)
	}
	page := decodeBody[listResponse](t, w)
	if page.Total != 3 || len(page.Receipts) != 3 {
		t.Fatalf("expected all 3 logged receipts, got total=%d len=%d", page.Total, len(page.Receipts))
	}
	for i, r := range page.Receipts {
		if r.Hash != hashes[i] {
			t.Fatalf("receipt %d hash %q, want %q", i, r.Hash, hashes[i])
		}
	}

	if w := ts.do(t, http.MethodGet, "/v1/receipts/"+hashes[2], nil, nil); w.Code != http.StatusOK {
		t.Fatalf("get of unindexed receipt: %d", w.Code)
	}
}

func TestCheckpointAndInclusion(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	var hashes []string
	for i := 0; i < 5; i++ {
		w := ts.do(t, http.MethodPost, "/v1/receipts", map[string]any{"subject_a": "a", "subject_b": "b", "consent": true}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("generate: %d", w.Code)
		}
		hashes = append(hashes, decodeBody[domain.Receipt](t, w).Hash)
	}

	w := ts.do(t, http.MethodGet, "/v1/log/checkpoint", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("checkpoint status %d", w.Code)
	}
	cp := decodeBody[checkpointResponse](t, w)
	if cp.Size != 5 || cp.Signature == "" || cp.KID != "http-test" {
		t.Fatalf("unexpected checkpoint %+v", cp)
	}

	w = ts.do(t, http.MethodGet, "/v1/log/inclusion/"+hashes[3], nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("inclusion status %d: %s", w.Code, w.Body.String())
	}
	proof := decodeBody[inclusionResponse](t, w)
	if proof.LeafIndex != 3 || proof.TreeSize != 5 || proof.RootHash != cp.RootHash {
		t.Fatalf("unexpected proof %+v", proof)
	}

	w = ts.do(t, http.MethodGet, "/v1/log/consistency?from=2&to=5", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("consistency status %d: %s", w.Code, w.Body.String())
	}
	if cons := decodeBody[consistencyResponse](t, w); cons.FromSize != 2 || cons.ToSize != 5 || len(cons.Path) == 0 {
		t.Fatalf("unexpected consistency proof %+v", cons)
	}
	if w := ts.do(t, http.MethodGet, "/v1/log/consistency?from=9", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for from beyond size, got %d", w.Code)
	}
}

func TestSigningKeyEndpoint(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	w := ts.do(t, http.MethodGet, "/v1/keys/signing", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	key := decodeBody[keyResponse](t, w)
	raw, err := base64.StdEncoding.DecodeString(key.PublicKey)
	if err != nil || !bytes.Equal(raw, ts.signer.PublicKey()) {
		t.Fatalf("unexpected public key %q", key.PublicKey)
	}

	w = ts.do(t, http.MethodPost, "/v1/receipts", map[string]any{"subject_a": "a", "subject_b": "b", "consent": true}, nil)
	receipt := decodeBody[domain.Receipt](t, w)
	other, _, err := crypto.GenerateSigner(domain.SigAlgEd25519, "", nil)
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	w = ts.do(t, http.MethodPost, "/v1/receipts/verify", map[string]any{
		"receipt":    receipt,
		"public_key": hex.EncodeToString(other.PublicKey()),
	}, nil)
	if result := decodeBody[domain.VerificationResult](t, w); result.Valid || result.SignatureValid {
		t.Fatalf("expected signature failure with foreign key, got %+v", result)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateLimitRequests = 2
	now := time.Unix(1_700_000_000, 0)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{Now: func() time.Time { return now }})
	ts := newTestServer(t, cfg, limiter)

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodGet, "/v1/log/checkpoint", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status %d", i, w.Code)
		}
		if w.Header().Get("RateLimit-Limit") != "2" {
			t.Fatalf("missing RateLimit-Limit header")
		}
	}
	w := ts.do(t, http.MethodGet, "/v1/log/checkpoint", nil, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("RateLimit-Remaining") != "0" {
		t.Fatalf("missing throttling headers: %v", w.Header())
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int, time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("redis down")
}

func TestRateLimitFailOpenAndClosed(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateLimitRequests = 1
	if w := newTestServer(t, cfg, brokenLimiter{}).do(t, http.MethodGet, "/healthz", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("healthz status %d", w.Code)
	}
	if w := newTestServer(t, cfg, brokenLimiter{}).do(t, http.MethodGet, "/v1/keys/signing", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("fail open status %d", w.Code)
	}
	cfg.RateLimitFailClosed = true
	if w := newTestServer(t, cfg, brokenLimiter{}).do(t, http.MethodGet, "/v1/keys/signing", nil, nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed status %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, config.Defaults(), nil)
	ts.do(t, http.MethodPost, "/v1/receipts", map[string]any{"subject_a": "a", "subject_b": "b", "consent": true}, nil)
	w := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `receipts_generated_total{status="sealed"} 1`) {
		t.Fatalf("generated counter missing from metrics output")
	}
}

func TestWriteErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewSerializationError("x", errors.New("bad")), http.StatusBadRequest, "SERIALIZATION_ERROR"},
		{domain.NewCryptoError("x", errors.New("bad")), http.StatusInternalServerError, "CRYPTO_ERROR"},
		{domain.ErrStorage, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: status %d, want %d", tc.err, w.Code, tc.status)
		}
		if resp := decodeBody[errorResponse](t, w); resp.Code != tc.code {
			t.Fatalf("%v: code %q, want %q", tc.err, resp.Code, tc.code)
		}
	}
}
