package api

import (
	"errors"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/paystream-hq/paystreamer/pkg/models"
)

// createIntentRequest is the wire form of a schedule submission. Amounts are
// decimal strings; durations use Go duration syntax ("24h", "90s").
type createIntentRequest struct {
	Wallet     string   `json:"wallet" binding:"required"`
	Asset      string   `json:"asset"`
	Name       string   `json:"name"`
	Recipients []string `json:"recipients" binding:"required"`
	Amounts    []string `json:"amounts" binding:"required"`
	Duration   string   `json:"duration" binding:"required"`
	Interval   string   `json:"interval" binding:"required"`
	StartTime  string   `json:"start_time"`
	Policy     string   `json:"policy" binding:"required"`
}

type intentResponse struct {
	ID                  string    `json:"id"`
	Wallet              string    `json:"wallet"`
	Asset               string    `json:"asset"`
	Name                string    `json:"name"`
	Recipients          []string  `json:"recipients"`
	Amounts             []string  `json:"amounts"`
	Interval            string    `json:"interval"`
	TotalExecutions     uint64    `json:"total_executions"`
	ExecutionsPerformed uint64    `json:"executions_performed"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	LatestExecution     string    `json:"latest_execution,omitempty"`
	Status              string    `json:"status"`
	Policy              string    `json:"policy"`
	FailedAmount        string    `json:"failed_amount"`
	RemainingCommitment string    `json:"remaining_commitment"`
	CreatedAt           time.Time `json:"created_at"`
}

func toIntentResponse(i *models.Intent) intentResponse {
	recipients := make([]string, len(i.Recipients))
	for k, r := range i.Recipients {
		recipients[k] = r.Hex()
	}
	amounts := make([]string, len(i.Amounts))
	for k, a := range i.Amounts {
		amounts[k] = a.String()
	}
	resp := intentResponse{
		ID:                  i.ID.Hex(),
		Wallet:              i.Wallet.Hex(),
		Asset:               i.Asset.Hex(),
		Name:                i.Name,
		Recipients:          recipients,
		Amounts:             amounts,
		Interval:            i.Interval.String(),
		TotalExecutions:     i.TotalExecutions,
		ExecutionsPerformed: i.ExecutionsPerformed,
		StartTime:           i.StartTime,
		EndTime:             i.EndTime,
		Status:              i.Status(),
		Policy:              string(i.Policy),
		FailedAmount:        i.FailedAmount.String(),
		RemainingCommitment: i.RemainingCommitment().String(),
		CreatedAt:           i.CreatedAt,
	}
	if !i.LatestExecution.IsZero() {
		resp.LatestExecution = i.LatestExecution.Format(time.RFC3339)
	}
	return resp
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyInactive),
		errors.Is(err, engine.ErrNotActive),
		errors.Is(err, engine.ErrNotExecutable),
		errors.Is(err, engine.ErrTransferAborted):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoRecipients),
		errors.Is(err, engine.ErrTooManyRecipients),
		errors.Is(err, engine.ErrLengthMismatch),
		errors.Is(err, engine.ErrZeroAmount),
		errors.Is(err, engine.ErrZeroRecipient),
		errors.Is(err, engine.ErrIntervalTooShort),
		errors.Is(err, engine.ErrInvalidDuration),
		errors.Is(err, engine.ErrStartTimeInPast),
		errors.Is(err, engine.ErrInvalidPolicy),
		errors.Is(err, engine.ErrScheduleTooShort):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleCreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params, err := parseCreateRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.engine.CreateIntent(c.Request.Context(), params)
	if err != nil {
		s.logger.DebugWith(logger.API, "Create intent rejected: %v", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	intent, _ := s.engine.Store().GetCopy(params.Wallet, id)
	c.JSON(http.StatusCreated, toIntentResponse(intent))
}

func parseCreateRequest(req createIntentRequest) (engine.CreateIntentParams, error) {
	var params engine.CreateIntentParams

	if !common.IsHexAddress(req.Wallet) {
		return params, errors.New("wallet must be a valid hex address")
	}
	params.Wallet = common.HexToAddress(req.Wallet)

	// An absent asset means the native asset.
	if req.Asset != "" {
		if !common.IsHexAddress(req.Asset) {
			return params, errors.New("asset must be a valid hex address")
		}
		params.Asset = common.HexToAddress(req.Asset)
	} else {
		params.Asset = models.NativeAsset
	}

	params.Name = req.Name
	for _, r := range req.Recipients {
		if !common.IsHexAddress(r) {
			return params, errors.New("recipient must be a valid hex address: " + r)
		}
		params.Recipients = append(params.Recipients, common.HexToAddress(r))
	}
	for _, a := range req.Amounts {
		amount, ok := new(big.Int).SetString(a, 10)
		if !ok {
			return params, errors.New("amount must be a decimal integer: " + a)
		}
		params.Amounts = append(params.Amounts, amount)
	}

	duration, err := time.ParseDuration(req.Duration)
	if err != nil {
		return params, errors.New("duration must be a valid duration string")
	}
	params.Duration = duration

	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		return params, errors.New("interval must be a valid duration string")
	}
	params.Interval = interval

	if req.StartTime != "" {
		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			return params, errors.New("start_time must be RFC3339")
		}
		params.StartTime = start
	}

	params.Policy = models.FailurePolicy(req.Policy)
	return params, nil
}

func (s *Server) handleListIntents(c *gin.Context) {
	walletParam := c.Query("wallet")
	if !common.IsHexAddress(walletParam) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet query parameter must be a valid hex address"})
		return
	}
	wallet := common.HexToAddress(walletParam)

	intents := s.engine.Store().IntentsByWallet(wallet)
	sort.Slice(intents, func(i, j int) bool {
		return intents[i].CreatedAt.Before(intents[j].CreatedAt)
	})

	out := make([]intentResponse, 0, len(intents))
	for _, i := range intents {
		if c.Query("status") != "" && i.Status() != c.Query("status") {
			continue
		}
		out = append(out, toIntentResponse(i))
	}
	c.JSON(http.StatusOK, gin.H{"intents": out, "total_count": len(out)})
}

func (s *Server) handleGetIntent(c *gin.Context) {
	wallet, id, ok := s.walletAndID(c)
	if !ok {
		return
	}

	intent, found := s.engine.Store().GetCopy(wallet, id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
		return
	}
	c.JSON(http.StatusOK, toIntentResponse(intent))
}

func (s *Server) handleCancelIntent(c *gin.Context) {
	wallet, id, ok := s.walletAndID(c)
	if !ok {
		return
	}

	receipt, err := s.engine.CancelIntent(c.Request.Context(), wallet, id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refunded":         receipt.Refunded.String(),
		"recovered_failed": receipt.RecoveredFailed.String(),
	})
}

func (s *Server) handleExecutions(c *gin.Context) {
	if s.indexer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "indexer not available"})
		return
	}
	idParam := c.Param("id")
	records, err := s.indexer.Executions(common.HexToHash(idParam))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": records, "total_count": len(records)})
}

// handleCheck runs one due-intent scan and reports the first executable
// intent, if any. This is the keeper's read-only probe.
func (s *Server) handleCheck(c *gin.Context) {
	candidate, err := s.engine.FindDueIntent(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if candidate == nil {
		c.JSON(http.StatusOK, gin.H{"due": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"due":       true,
		"wallet":    candidate.Wallet.Hex(),
		"intent_id": candidate.IntentID.Hex(),
	})
}

type performRequest struct {
	Wallet   string `json:"wallet" binding:"required"`
	IntentID string `json:"intent_id" binding:"required"`
}

// handlePerform triggers one execution. Anyone may call this; the engine
// re-checks the due predicate before moving funds.
func (s *Server) handlePerform(c *gin.Context) {
	var req performRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(req.Wallet) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet must be a valid hex address"})
		return
	}

	receipt, err := s.engine.Execute(c.Request.Context(), common.HexToAddress(req.Wallet), common.HexToHash(req.IntentID))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	results := make([]gin.H, 0, len(receipt.Results))
	for _, r := range receipt.Results {
		results = append(results, gin.H{
			"recipient": r.Recipient.Hex(),
			"amount":    r.Amount.String(),
			"succeeded": r.Succeeded,
			"reason":    r.Reason,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"intent_id":       receipt.IntentID.Hex(),
		"execution_index": receipt.ExecutionIndex,
		"total_amount":    receipt.TotalAmount.String(),
		"failed_amount":   receipt.FailedAmount.String(),
		"completed":       receipt.Completed,
		"results":         results,
	})
}

func (s *Server) handleCommitted(c *gin.Context) {
	addrParam := c.Param("address")
	if !common.IsHexAddress(addrParam) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address must be a valid hex address"})
		return
	}
	assetParam := c.DefaultQuery("asset", models.NativeAsset.Hex())
	if !common.IsHexAddress(assetParam) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset must be a valid hex address"})
		return
	}

	committed := s.engine.Ledger().Committed(common.HexToAddress(addrParam), common.HexToAddress(assetParam))
	c.JSON(http.StatusOK, gin.H{
		"wallet":    common.HexToAddress(addrParam).Hex(),
		"asset":     common.HexToAddress(assetParam).Hex(),
		"committed": committed.String(),
	})
}

func (s *Server) walletAndID(c *gin.Context) (common.Address, common.Hash, bool) {
	walletParam := c.Query("wallet")
	if !common.IsHexAddress(walletParam) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet query parameter must be a valid hex address"})
		return common.Address{}, common.Hash{}, false
	}
	return common.HexToAddress(walletParam), common.HexToHash(c.Param("id")), true
}
