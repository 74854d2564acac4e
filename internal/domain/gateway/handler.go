package gateway

import (
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/payerlink/payerlink/internal/platform/auth"
	"github.com/payerlink/payerlink/pkg/pagination"
)

type Handler struct {
	svc *Service
	txs TransactionRepository
}

func NewHandler(svc *Service, txs TransactionRepository) *Handler {
	return &Handler{svc: svc, txs: txs}
}

// RegisterRoutes wires the authenticated gateway endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/billing/claims-gateway", auth.RequireRole("admin", "billing"))
	g.POST("/preauth/:id/submit", h.SubmitPreauth)
	g.GET("/preauth/:id/status", h.GetPreauthStatus)
	g.POST("/preauth/:id/refresh-status", h.RefreshPreauthStatus)
	g.POST("/claims/:id/submit", h.SubmitClaim)
	g.GET("/claims/:id/status", h.GetClaimStatus)
	g.POST("/claims/:id/refresh-status", h.RefreshClaimStatus)
	g.POST("/coverage/check", h.CheckCoverage)
	g.GET("/transactions", h.ListTransactions)
	g.GET("/transactions/:id", h.GetTransaction)
}

// RegisterWebhook wires the unauthenticated payer callback. Signature
// verification replaces JWT auth here.
func (h *Handler) RegisterWebhook(root *echo.Group) {
	root.POST("/billing/claims-gateway/webhook/:payerId", h.Webhook)
}

func (h *Handler) SubmitPreauth(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid preauth id")
	}
	result, err := h.svc.SubmitPreauth(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) SubmitClaim(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	result, err := h.svc.SubmitClaim(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetPreauthStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid preauth id")
	}
	res, err := h.svc.GetPreauthStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetClaimStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	res, err := h.svc.GetClaimStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RefreshPreauthStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid preauth id")
	}
	res, err := h.svc.RefreshPreauthStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RefreshClaimStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	res, err := h.svc.RefreshClaimStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type coverageCheckRequest struct {
	PayerID       string `json:"payer_id"`
	PolicyNumber  string `json:"policy_number"`
	MemberID      string `json:"member_id"`
	ProviderCode  string `json:"provider_code"`
	PatientName   string `json:"patient_name"`
	PatientDOB    string `json:"patient_dob"`
	ServiceDate   string `json:"service_date"`
	ProcedureCode string `json:"procedure_code"`
}

func (h *Handler) CheckCoverage(c echo.Context) error {
	var req coverageCheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	payerID, err := uuid.Parse(req.PayerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payer_id")
	}
	branchID, err := uuid.Parse(auth.BranchIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing branch context")
	}

	res, err := h.svc.CheckCoverage(c.Request().Context(), branchID, payerID, &CoverageCheck{
		PolicyNumber:  req.PolicyNumber,
		MemberID:      req.MemberID,
		ProviderCode:  req.ProviderCode,
		PatientName:   req.PatientName,
		PatientDOB:    req.PatientDOB,
		ServiceDate:   req.ServiceDate,
		ProcedureCode: req.ProcedureCode,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

// Webhook ingests one payer notification. The response is 200 no matter
// what: the result body says whether the delivery was processed.
func (h *Handler) Webhook(c echo.Context) error {
	payerID, err := uuid.Parse(c.Param("payerId"))
	if err != nil {
		return c.JSON(http.StatusOK, &WebhookResult{Processed: false, Reason: "invalid payer id"})
	}
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusOK, &WebhookResult{Processed: false, Reason: "unreadable body"})
	}
	result := h.svc.ProcessWebhook(c.Request().Context(), payerID, c.Request().Header, rawBody)
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListTransactions(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	if entityType := c.QueryParam("entity_type"); entityType != "" {
		entityID := c.QueryParam("entity_id")
		if entityID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "entity_id is required with entity_type")
		}
		items, total, err := h.txs.ListByEntity(ctx, entityType, entityID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	branchID, err := uuid.Parse(auth.BranchIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing branch context")
	}
	var since *time.Time
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339")
		}
		since = &t
	}
	items, total, err := h.txs.List(ctx, branchID, c.QueryParam("tx_type"), since, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetTransaction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid transaction id")
	}
	tx, err := h.txs.GetByID(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if tx == nil {
		return echo.NewHTTPError(http.StatusNotFound, "transaction not found")
	}
	return c.JSON(http.StatusOK, tx)
}
