// Package api is the http boundary of the swap coordinator. It validates
// and decodes client input, maps it onto coordinator calls and translates
// component errors into status codes. No swap logic lives here.
package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	logger "github.com/sirupsen/logrus"

	"github.com/shopspring/decimal"

	"github.com/1foot-Labs/swapd/commitment"
	"github.com/1foot-Labs/swapd/coordinator"
	"github.com/1foot-Labs/swapd/escrow"
	"github.com/1foot-Labs/swapd/order"
	"github.com/1foot-Labs/swapd/pricing"
	"github.com/1foot-Labs/swapd/settlement"
)

const (
	ROUTE_HELLO         = "/hello"
	ROUTE_ORDERS        = "/api/orders"
	ROUTE_SOURCE_ESCROW = "/api/source-escrow/:id"
	ROUTE_ORDER_STATUS  = "/api/orders/:id/status"
	ROUTE_ORDER_CLAIM   = "/api/orders/:id/claim"
	ROUTE_COMMITMENTS   = "/api/commitments"
	ROUTE_QUOTE         = "/api/quote"
)

type Server struct {
	serverIP   string // listen ip
	serverPort string // listen port

	coord  *coordinator.Coordinator
	quoter *pricing.Quoter
}

func NewServer(serverIP string, serverPort string, coord *coordinator.Coordinator, quoter *pricing.Quoter) *Server {
	return &Server{
		serverIP:   serverIP,
		serverPort: serverPort,
		coord:      coord,
		quoter:     quoter,
	}
}

// Hook up routes & handlers
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(ROUTE_HELLO, Hello)
	router.POST(ROUTE_ORDERS, s.CreateOrder)
	router.GET(ROUTE_SOURCE_ESCROW, s.SourceEscrow)
	router.GET(ROUTE_ORDER_STATUS, s.OrderStatus)
	router.POST(ROUTE_ORDER_CLAIM, s.Claim)
	router.POST(ROUTE_COMMITMENTS, s.NewCommitment)
	router.GET(ROUTE_QUOTE, s.Quote)

	return router
}

// Hook up router & ip:port
func (s *Server) Run() error {
	router := s.SetupRouter()
	address := s.serverIP + ":" + s.serverPort
	return router.Run(address)
}

func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "world",
	})
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Reason: err.Error()})
		return
	}

	direction := order.Direction(req.Type)
	if !direction.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unsupported swap type", Reason: req.Type})
		return
	}

	digests, err := commitment.ParseDigestSet(req.Sha256, req.Hash160)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid commitment digests", Reason: err.Error()})
		return
	}

	pubKey, err := hex.DecodeString(strings.TrimPrefix(req.CounterpartyPublicKey, "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid counterparty public key"})
		return
	}

	give, ok := toBaseUnits(req.AmountToGive, direction.Source())
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid amountToGive", Reason: req.AmountToGive})
		return
	}
	receive, ok := toBaseUnits(req.AmountToReceive, direction.Destination())
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid amountToReceive", Reason: req.AmountToReceive})
		return
	}

	o, err := s.coord.CreateOrder(order.CreateSpec{
		Direction:          direction,
		MakerIdentity:      req.MakerAddress,
		CounterpartyPubKey: pubKey,
		Digests:            digests,
		AmountToGive:       give.BigInt(),
		AmountToReceive:    receive.BigInt(),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateOrderResponse{OrderID: o.ID})
}

// SourceEscrow publishes the deposit target once derivation completed.
// Clients poll this route right after order creation.
func (s *Server) SourceEscrow(c *gin.Context) {
	o, err := s.coord.GetOrder(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	if o.SourceEscrowAddress == "" {
		c.JSON(http.StatusOK, EscrowResponse{Pending: true})
		return
	}
	c.JSON(http.StatusOK, EscrowResponse{
		SourceEscrowAddress: o.SourceEscrowAddress,
		Amount:              fromBaseUnits(o.AmountToGive.String(), o.Direction.Source()),
	})
}

func (s *Server) OrderStatus(c *gin.Context) {
	o, err := s.coord.GetOrder(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		State:         string(o.State),
		Confirmations: o.Confirmations,
		Underfunded:   o.Underfunded(),
		FailReason:    o.FailReason,
	})
}

func (s *Server) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Reason: err.Error()})
		return
	}

	secret, err := hex.DecodeString(strings.TrimPrefix(req.Secret, "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "secret is not valid hex"})
		return
	}

	receipt, err := s.coord.Claim(c.Request.Context(), c.Param("id"), secret)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ClaimResponse{
		Settled: true,
		Receipt: ReceiptPayload{
			OrderID:   receipt.OrderID,
			SettledAt: receipt.SettledAt.UnixMilli(),
		},
	})
}

// NewCommitment hands out a fresh secret with both lock digests. Meant for
// test clients; production makers generate the secret on their own machine.
func (s *Server) NewCommitment(c *gin.Context) {
	secret, ds, err := commitment.Generate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "commitment generation failed"})
		return
	}

	c.JSON(http.StatusCreated, CommitmentResponse{
		Secret:  hex.EncodeToString(secret),
		Sha256:  ds.Sha256Hex(),
		Hash160: ds.Hash160Hex(),
	})
}

// Quote answers how much of the destination asset the given source amount
// buys right now. Indicative only; nothing is reserved.
func (s *Server) Quote(c *gin.Context) {
	if s.quoter == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "quoting is not configured"})
		return
	}

	direction := order.Direction(c.Query("type"))
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid amount", Reason: c.Query("amount")})
		return
	}

	quoted, err := s.quoter.Quote(c.Request.Context(), direction, amount)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, QuoteResponse{
		Type:            string(direction),
		AmountToGive:    amount.String(),
		AmountToReceive: quoted.String(),
	})
}

// writeError maps component errors to http statuses. Unrecognized errors
// are logged and hidden behind a 500.
func (s *Server) writeError(c *gin.Context, err error) {
	var notClaimable *settlement.NotClaimableError

	switch {
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, order.ErrBadDirection),
		errors.Is(err, order.ErrInvalidAmount),
		errors.Is(err, order.ErrInvalidExpiry),
		errors.Is(err, order.ErrNoMaker),
		errors.Is(err, order.ErrNoDigests),
		errors.Is(err, escrow.ErrUnsupportedChainFamily),
		errors.Is(err, escrow.ErrBadMakerIdentity),
		errors.Is(err, escrow.ErrBadCounterpartyKey),
		errors.Is(err, pricing.ErrNoRate):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &notClaimable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "order is not claimable", Reason: string(notClaimable.Reason)})
	case errors.Is(err, commitment.ErrInvalidSecret),
		errors.Is(err, commitment.ErrSecretTooShort):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		logger.Errorf("unhandled api error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
