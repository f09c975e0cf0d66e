package rest

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/api/middleware"
	"github.com/feral-file/ff-collection-bridge/internal/api/rest/dto"
	"github.com/feral-file/ff-collection-bridge/internal/devnet"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/relay"
	"github.com/feral-file/ff-collection-bridge/internal/store"
	"github.com/feral-file/ff-collection-bridge/internal/store/schema"
)

const DEFAULT_REDELIVER_LIMIT = 100

// Handler defines the interface for REST API handlers
type Handler interface {
	// HealthCheck returns the health status of the API and the head of both chains
	// GET /health
	HealthCheck(c *gin.Context)

	// PredictAddress returns the address a factory deploys a collection to
	// GET /api/v1/factories/:kind/address?salt=<salt>&deployer=<address>&init_payload=<hex>
	PredictAddress(c *gin.Context)

	// CreateCollection deploys a collection through a factory as the network owner (requires authentication)
	// POST /api/v1/collections
	CreateCollection(c *gin.Context)

	// IssueTokens issues collection tokens as the network owner (requires authentication)
	// POST /api/v1/collections/:address/tokens
	IssueTokens(c *gin.Context)

	// GetCollectionToken returns a collection token on the root chain
	// GET /api/v1/collections/:address/tokens/:token_id
	GetCollectionToken(c *gin.Context)

	// SetApproval approves an operator for every collection token of an owner (requires authentication)
	// POST /api/v1/collections/:address/approvals
	SetApproval(c *gin.Context)

	// Deposit locks collection tokens in the root tunnel (requires authentication)
	// POST /api/v1/deposits
	Deposit(c *gin.Context)

	// Withdraw burns bridged tokens on the child chain (requires authentication)
	// POST /api/v1/withdrawals
	Withdraw(c *gin.Context)

	// GetBridgedToken returns the bridged representation of a collection token
	// GET /api/v1/bridged-tokens/:collection/:token_id
	GetBridgedToken(c *gin.Context)

	// ListMessages lists journaled bridge messages, newest first
	// GET /api/v1/messages?direction=<direction>&status=<status>&limit=<limit>&offset=<offset>
	ListMessages(c *gin.Context)

	// GetMessage returns a journaled bridge message
	// GET /api/v1/messages/:key
	GetMessage(c *gin.Context)

	// RedeliverMessage delivers a journaled message again (requires authentication)
	// POST /api/v1/messages/:key/redeliver
	RedeliverMessage(c *gin.Context)

	// RedeliverPending redelivers pending messages (requires authentication)
	// POST /api/v1/messages/redeliver
	RedeliverPending(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	network        *devnet.Network
	store          store.Store
	relay          relay.Relay
	redeliverLimit int
}

// NewHandler creates a new REST API handler
func NewHandler(network *devnet.Network, st store.Store, r relay.Relay, redeliverLimit int) Handler {
	if redeliverLimit <= 0 {
		redeliverLimit = DEFAULT_REDELIVER_LIMIT
	}
	return &handler{
		network:        network,
		store:          st,
		relay:          r,
		redeliverLimit: redeliverLimit,
	}
}

func (h *handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	rootBlock, err := h.network.Root.BlockNumber(ctx)
	if err != nil {
		respondError(c, err, "Failed to read root chain head")
		return
	}
	childBlock, err := h.network.Child.BlockNumber(ctx)
	if err != nil {
		respondError(c, err, "Failed to read child chain head")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"root": gin.H{
			"chain": h.network.Root.ID(),
			"block": rootBlock,
		},
		"child": gin.H{
			"chain": h.network.Child.ID(),
			"block": childBlock,
		},
	})
}

func (h *handler) PredictAddress(c *gin.Context) {
	kind, err := ParseFactoryKind(c.Param("kind"))
	if err != nil {
		respondBadRequest(c, "Invalid factory kind", err.Error())
		return
	}

	var params PredictAddressQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	salt, err := ParseSalt(params.Salt)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	deployer, err := domain.ParseAddress(params.Deployer)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	initPayload, err := parseHex(params.InitPayload)
	if err != nil {
		respondValidationError(c, fmt.Sprintf("invalid init payload: %s", err))
		return
	}

	addr, err := h.network.PredictAddress(kind, salt, deployer, initPayload)
	if err != nil {
		respondError(c, err, "Failed to predict address")
		return
	}

	f, _ := h.network.Factory(kind)
	c.JSON(http.StatusOK, dto.PredictAddressResponse{
		Kind:     string(kind),
		Factory:  f.Address().Hex(),
		Deployer: deployer.Hex(),
		Salt:     salt.Hex(),
		Address:  addr.Hex(),
	})
}

func (h *handler) CreateCollection(c *gin.Context) {
	var req dto.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	kind, err := ParseFactoryKind(req.Kind)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	salt, err := ParseSalt(req.Salt)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	addr, err := h.network.CreateCollection(kind, salt, req.InitPayload)
	if err != nil {
		respondError(c, err, "Failed to create collection")
		return
	}

	logger.InfoCtx(c.Request.Context(), "Collection created via API",
		zap.String("address", addr.Hex()),
		zap.String("request_id", middleware.RequestIDFrom(c)),
	)

	c.JSON(http.StatusCreated, dto.CreateCollectionResponse{
		Kind:    string(kind),
		Address: addr.Hex(),
	})
}

func (h *handler) IssueTokens(c *gin.Context) {
	collectionAddr, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		respondBadRequest(c, "Invalid collection address", err.Error())
		return
	}

	var req dto.IssueTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	beneficiaries, err := parseAddresses(req.Beneficiaries)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	itemIDs, err := parseTokenIDs(req.ItemIDs)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ids, err := h.network.IssueTokens(collectionAddr, beneficiaries, itemIDs)
	if err != nil {
		respondError(c, err, "Failed to issue tokens")
		return
	}

	resp := dto.IssueTokensResponse{TokenIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.TokenIDs = append(resp.TokenIDs, id.String())
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handler) GetCollectionToken(c *gin.Context) {
	collectionAddr, tokenID, ok := parseTokenPath(c, "address")
	if !ok {
		return
	}

	token, err := h.network.CollectionToken(collectionAddr, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNonexistentToken) {
			respondNotFound(c, "Token not found")
			return
		}
		respondError(c, err, "Failed to get collection token")
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *handler) SetApproval(c *gin.Context) {
	collectionAddr, err := domain.ParseAddress(c.Param("address"))
	if err != nil {
		respondBadRequest(c, "Invalid collection address", err.Error())
		return
	}

	var req dto.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	owner, err := domain.ParseAddress(req.Owner)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	operator := h.network.RootTunnel.Address()
	if req.Operator != "" {
		if operator, err = domain.ParseAddress(req.Operator); err != nil {
			respondValidationError(c, err.Error())
			return
		}
	}
	approved := req.Approved == nil || *req.Approved

	if err := h.network.SetApprovalForAll(owner, collectionAddr, operator, approved); err != nil {
		respondError(c, err, "Failed to set approval")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":    owner.Hex(),
		"operator": operator.Hex(),
		"approved": approved,
	})
}

func (h *handler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	sender, err := domain.ParseAddress(req.Sender)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	beneficiary, err := domain.ParseAddress(req.Beneficiary)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	items := make([]domain.DepositItem, 0, len(req.Items))
	for _, item := range req.Items {
		collectionAddr, err := domain.ParseAddress(item.Collection)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}
		tokenID, err := parseTokenID(item.TokenID)
		if err != nil {
			respondValidationError(c, err.Error())
			return
		}

		auxData := []byte(item.AuxData)
		if len(auxData) == 0 {
			// collections of unknown factories go through with no aux data and are rejected by the validator
			if auxData, err = h.network.AuxDataFor(collectionAddr); err != nil {
				auxData = nil
			}
		}

		items = append(items, domain.DepositItem{
			Collection: collectionAddr,
			TokenId:    tokenID,
			AuxData:    auxData,
		})
	}

	stateID, receipt, err := h.network.DepositFor(sender, beneficiary, items)
	if err != nil {
		respondError(c, err, "Failed to deposit")
		return
	}

	logger.InfoCtx(c.Request.Context(), "Deposit submitted via API",
		zap.String("stateID", stateID.String()),
		zap.String("txHash", receipt.TxHash.Hex()),
		zap.String("request_id", middleware.RequestIDFrom(c)),
	)

	c.JSON(http.StatusAccepted, dto.DepositResponse{
		StateID:     stateID.String(),
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber,
	})
}

func (h *handler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	sender, err := domain.ParseAddress(req.Sender)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	beneficiary, err := domain.ParseAddress(req.Beneficiary)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	tokenIDs, err := parseTokenIDs(req.TokenIDs)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	receipt, err := h.network.WithdrawFor(sender, beneficiary, tokenIDs)
	if err != nil {
		respondError(c, err, "Failed to withdraw")
		return
	}

	c.JSON(http.StatusAccepted, dto.TxResponse{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber,
	})
}

func (h *handler) GetBridgedToken(c *gin.Context) {
	collectionAddr, tokenID, ok := parseTokenPath(c, "collection")
	if !ok {
		return
	}

	token, err := h.network.BridgedToken(collectionAddr, tokenID)
	if err != nil {
		respondError(c, err, "Failed to get bridged token")
		return
	}
	if !token.Exists {
		respondNotFound(c, "Bridged token not found", token.ID.String())
		return
	}

	c.JSON(http.StatusOK, token)
}

func (h *handler) ListMessages(c *gin.Context) {
	params, err := ParseListMessagesQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := params.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	records, err := h.store.ListBridgeMessages(c.Request.Context(), store.BridgeMessageFilter{
		Direction: domain.Direction(params.Direction),
		Status:    schema.BridgeMessageStatus(params.Status),
		Limit:     params.Limit,
		Offset:    params.Offset,
	})
	if err != nil {
		respondError(c, err, "Failed to list bridge messages")
		return
	}

	resp := dto.BridgeMessageListResponse{
		Messages: make([]dto.BridgeMessageResponse, 0, len(records)),
		Offset:   params.Offset,
		Limit:    params.Limit,
	}
	for i := range records {
		resp.Messages = append(resp.Messages, dto.MapBridgeMessageToDTO(&records[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) GetMessage(c *gin.Context) {
	key := c.Param("key")

	record, err := h.store.GetBridgeMessage(c.Request.Context(), key)
	if err != nil {
		respondError(c, err, "Failed to get bridge message")
		return
	}
	if record == nil {
		respondNotFound(c, "Bridge message not found", key)
		return
	}

	c.JSON(http.StatusOK, dto.MapBridgeMessageToDTO(record))
}

func (h *handler) RedeliverMessage(c *gin.Context) {
	outcome, err := h.relay.Redeliver(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "Failed to redeliver bridge message")
		return
	}

	c.JSON(http.StatusOK, outcome)
}

func (h *handler) RedeliverPending(c *gin.Context) {
	var req dto.RedeliverRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err.Error())
			return
		}
	}
	if req.Limit <= 0 || req.Limit > h.redeliverLimit {
		req.Limit = h.redeliverLimit
	}

	delivered, err := h.relay.RedeliverPending(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, err, "Failed to redeliver pending bridge messages")
		return
	}

	c.JSON(http.StatusOK, dto.RedeliverResponse{Delivered: delivered})
}

// parseTokenPath parses the collection and token id path parameters, responding on failure
func parseTokenPath(c *gin.Context, collectionParam string) (common.Address, *big.Int, bool) {
	collectionAddr, err := domain.ParseAddress(c.Param(collectionParam))
	if err != nil {
		respondBadRequest(c, "Invalid collection address", err.Error())
		return common.Address{}, nil, false
	}
	tokenID, err := parseTokenID(c.Param("token_id"))
	if err != nil {
		respondBadRequest(c, "Invalid token id", err.Error())
		return common.Address{}, nil, false
	}
	return collectionAddr, tokenID, true
}

// parseTokenID parses a uint256 token id
func parseTokenID(s string) (*big.Int, error) {
	id, err := domain.ParseBigInt(s)
	if err != nil {
		return nil, err
	}
	if id.BitLen() > 256 {
		return nil, fmt.Errorf("invalid number: %s exceeds 256 bits", s)
	}
	return id, nil
}

func parseTokenIDs(values []string) ([]*big.Int, error) {
	ids := make([]*big.Int, 0, len(values))
	for _, v := range values {
		id, err := parseTokenID(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseAddresses(values []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(values))
	for _, v := range values {
		addr, err := domain.ParseAddress(v)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
