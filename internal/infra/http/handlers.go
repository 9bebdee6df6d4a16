package http

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"receipts/internal/domain"
	"receipts/internal/infra/crypto"
	"receipts/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type generateRequest struct {
	SubjectA *Subject       `json:"subject_a"`
	SubjectB *Subject       `json:"subject_b"`
	Consent  bool           `json:"consent"`
	Identity map[string]any `json:"identity,omitempty"`
	Scorer   string         `json:"scorer,omitempty"`
}

type verifyRequest struct {
	Receipt   *domain.Receipt `json:"receipt"`
	PublicKey string          `json:"public_key,omitempty"`
}

type listResponse struct {
	Receipts []domain.Receipt `json:"receipts"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
	Total    int              `json:"total"`
}

type checkpointResponse struct {
	Size      int64  `json:"size"`
	RootHash  string `json:"root_hash"`
	IssuedAt  string `json:"issued_at"`
	KID       string `json:"kid,omitempty"`
	SigAlg    string `json:"sig_alg,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type inclusionResponse struct {
	Hash      string   `json:"hash"`
	LeafIndex int64    `json:"leaf_index"`
	TreeSize  int64    `json:"tree_size"`
	Path      []string `json:"path"`
	RootHash  string   `json:"root_hash"`
}

type consistencyResponse struct {
	FromSize int64    `json:"from_size"`
	ToSize   int64    `json:"to_size"`
	Path     []string `json:"path"`
}

type keyResponse struct {
	Alg       string `json:"alg"`
	KID       string `json:"kid"`
	PublicKey string `json:"public_key"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	principal, ok := s.requireAuth(c)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeReceiptsGenerate, principal) {
		return
	}
	if s.generateUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.SubjectA == nil || req.SubjectB == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "subject_a and subject_b are required")
		return
	}
	receipt, err := s.generateUC.Execute(c.Request.Context(), usecase.GenerateReceiptRequest{
		SubjectA: string(*req.SubjectA),
		SubjectB: string(*req.SubjectB),
		Identity: req.Identity,
		Consent:  req.Consent,
		Scorer:   req.Scorer,
	})
	if err != nil {
		_ = c.Error(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func (s *Server) handleVerify(c *gin.Context) {
	if !s.enforceRateLimit(c, routeReceiptsVerify, domain.Principal{}) {
		return
	}
	if s.verifyUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.Receipt == nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "receipt is required")
		return
	}
	var publicKey []byte
	if req.PublicKey != "" {
		decoded, err := crypto.DecodePublicKey(req.PublicKey)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_PUBLIC_KEY", err.Error())
			return
		}
		publicKey = decoded
	}
	result, err := s.verifyUC.Execute(c.Request.Context(), usecase.VerifyReceiptRequest{
		Receipt:   *req.Receipt,
		PublicKey: publicKey,
	})
	if err != nil {
		_ = c.Error(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleList(c *gin.Context) {
	if !s.enforceRateLimit(c, routeReceiptsRead, domain.Principal{}) {
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid offset")
		return
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	// The log is authoritative; the index may lag behind receipts written
	// by the CLI or whose index write failed.
	ctx := c.Request.Context()
	var (
		receipts []domain.Receipt
		total    int
	)
	if s.log != nil {
		receipts, total, err = s.log.List(ctx, offset, limit)
		if err != nil && s.index != nil {
			s.logger.Warn("log list failed, reading index", zap.Error(err))
			receipts, total, err = s.index.List(ctx, offset, limit)
		}
	} else if s.index != nil {
		receipts, total, err = s.index.List(ctx, offset, limit)
	} else {
		err = domain.ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	c.JSON(http.StatusOK, listResponse{Receipts: receipts, Offset: offset, Limit: limit, Total: total})
}

func (s *Server) handleGet(c *gin.Context) {
	if !s.enforceRateLimit(c, routeReceiptsRead, domain.Principal{}) {
		return
	}
	hash := c.Param("hash")
	if _, err := hex.DecodeString(hash); err != nil || hash == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "hash must be hex")
		return
	}
	ctx := c.Request.Context()
	if s.index != nil {
		receipt, err := s.index.GetByHash(ctx, hash)
		if err == nil {
			c.JSON(http.StatusOK, receipt)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("index lookup failed, reading log", zap.String("hash", hash), zap.Error(err))
		}
	}
	if s.log == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	receipt, err := s.log.Find(ctx, hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleCheckpoint(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLogRead, domain.Principal{}) {
		return
	}
	if s.checkpointUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	cp, err := s.checkpointUC.Checkpoint(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCheckpointResponse(cp))
}

func (s *Server) handleInclusionProof(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLogRead, domain.Principal{}) {
		return
	}
	if s.checkpointUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	hash := c.Param("hash")
	if _, err := hex.DecodeString(hash); err != nil || hash == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "hash must be hex")
		return
	}
	proof, err := s.checkpointUC.InclusionProof(c.Request.Context(), hash)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildInclusionResponse(proof))
}

func (s *Server) handleConsistencyProof(c *gin.Context) {
	if !s.enforceRateLimit(c, routeLogRead, domain.Principal{}) {
		return
	}
	if s.checkpointUC == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	fromSize, err := strconv.ParseInt(c.Query("from"), 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid from size")
		return
	}
	var toSize int64
	if raw := c.Query("to"); raw != "" {
		toSize, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid to size")
			return
		}
	}
	proof, err := s.checkpointUC.ConsistencyProof(c.Request.Context(), fromSize, toSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildConsistencyResponse(proof))
}

func (s *Server) handleSigningKey(c *gin.Context) {
	if !s.enforceRateLimit(c, routeKeysRead, domain.Principal{}) {
		return
	}
	if s.signingKey == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "receipts are not signed")
		return
	}
	c.JSON(http.StatusOK, keyResponse{
		Alg:       s.signingKey.Alg,
		KID:       s.signingKey.KID,
		PublicKey: base64.StdEncoding.EncodeToString(s.signingKey.PublicKey),
	})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func buildCheckpointResponse(cp domain.Checkpoint) checkpointResponse {
	sig := ""
	if len(cp.Signature) > 0 {
		sig = base64.StdEncoding.EncodeToString(cp.Signature)
	}
	return checkpointResponse{
		Size:      cp.Size,
		RootHash:  hex.EncodeToString(cp.RootHash),
		IssuedAt:  cp.IssuedAt.UTC().Format(time.RFC3339),
		KID:       cp.KID,
		SigAlg:    cp.SigAlg,
		Signature: sig,
	}
}

func buildInclusionResponse(proof domain.InclusionProof) inclusionResponse {
	return inclusionResponse{
		Hash:      proof.Hash,
		LeafIndex: proof.LeafIndex,
		TreeSize:  proof.TreeSize,
		Path:      hexPath(proof.Path),
		RootHash:  hex.EncodeToString(proof.RootHash),
	}
}

func buildConsistencyResponse(proof domain.ConsistencyProof) consistencyResponse {
	return consistencyResponse{
		FromSize: proof.FromSize,
		ToSize:   proof.ToSize,
		Path:     hexPath(proof.Path),
	}
}

func hexPath(path [][]byte) []string {
	out := make([]string, 0, len(path))
	for _, node := range path {
		out = append(out, hex.EncodeToString(node))
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case domain.IsSerializationError(err):
		status, code = http.StatusBadRequest, "SERIALIZATION_ERROR"
	case domain.IsCryptoError(err):
		status, code = http.StatusInternalServerError, "CRYPTO_ERROR"
	case errors.Is(err, domain.ErrStorage):
		status, code = http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	case errors.Is(err, domain.ErrInvalidReceipt):
		status, code = http.StatusBadRequest, "INVALID_RECEIPT"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
