package feeagreement

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recruitflow-crm/pkg/errutil"
)

// Handler exposes the actor-command surface consumed by the surrounding CRUD
// layer. Authentication happens upstream; the resolved actor arrives in the
// X-Actor-Id and X-Actor-Role headers.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	group := engine.Group("/v1/fee-agreements")
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.GET("/:id/history", h.History)
	group.PATCH("/:id/terms", h.UpdateTerms)
	group.POST("/:id/submit", h.command(ActionSubmit))
	group.POST("/:id/approve", h.command(ActionApprove))
	group.POST("/:id/decline", h.command(ActionDecline))
	group.POST("/:id/resubmit", h.command(ActionResubmit))
	group.POST("/:id/sign", h.command(ActionSign))
	group.POST("/:id/validate", h.command(ActionValidate))
	group.POST("/:id/cancel", h.command(ActionCancel))
}

func actorFrom(c *gin.Context) (Actor, error) {
	actor := Actor{
		ID:   c.GetHeader("X-Actor-Id"),
		Role: Role(c.GetHeader("X-Actor-Role")),
	}
	if actor.ID == "" || actor.Role == "" {
		return Actor{}, errutil.Unauthorized("missing actor identity")
	}
	if actor.Role == RoleSystem {
		// the system actor only exists internally
		return Actor{}, errutil.Forbidden("system role may not be assumed by callers")
	}
	return actor, nil
}

type createRequest struct {
	CompanyID            string   `json:"company_id" binding:"required"`
	HiringAuthorityID    string   `json:"hiring_authority_id"`
	HiringAuthorityName  string   `json:"hiring_authority_name"`
	HiringAuthorityEmail string   `json:"hiring_authority_email"`
	FeePercent           float64  `json:"fee_percent"`
	GuaranteeDays        int      `json:"guarantee_days"`
	FlatFeeAmount        *float64 `json:"flat_fee_amount"`
	PaymentScheme        string   `json:"payment_scheme"`
	ProcessType          string   `json:"signature_process_type"`
	Provider             string   `json:"esign_provider"`
	CoachID              *string  `json:"coach_id"`
	RegionalDirectorID   *string  `json:"regional_director_id"`
	ProductionDirectorID *string  `json:"production_director_id"`
	CCEmails             []string `json:"cc_emails"`
	VerbiageChangeNotes  string   `json:"verbiage_change_notes"`
}

func (h *Handler) Create(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	agreement, err := h.service.Create(c.Request.Context(), CreateInput{
		CompanyID:            req.CompanyID,
		HiringAuthorityID:    req.HiringAuthorityID,
		HiringAuthorityName:  req.HiringAuthorityName,
		HiringAuthorityEmail: req.HiringAuthorityEmail,
		FeePercent:           req.FeePercent,
		GuaranteeDays:        req.GuaranteeDays,
		FlatFeeAmount:        req.FlatFeeAmount,
		PaymentScheme:        req.PaymentScheme,
		ProcessType:          SignatureProcessType(req.ProcessType),
		Provider:             EsignProvider(req.Provider),
		Creator:              actor,
		CoachID:              req.CoachID,
		RegionalDirectorID:   req.RegionalDirectorID,
		ProductionDirectorID: req.ProductionDirectorID,
		CCEmails:             req.CCEmails,
		VerbiageChangeNotes:  req.VerbiageChangeNotes,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, agreement)
}

type commandRequest struct {
	Reason         string         `json:"reason"`
	DeclinedFields []string       `json:"declined_fields"`
	Details        map[string]any `json:"details"`
}

func (h *Handler) command(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := actorFrom(c)
		if err != nil {
			c.Error(err)
			return
		}

		var req commandRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
				return
			}
		}

		agreement, err := h.service.ApplyActorCommand(c.Request.Context(), c.Param("id"), Command{
			Action:         action,
			Actor:          actor,
			Reason:         req.Reason,
			DeclinedFields: req.DeclinedFields,
			Details:        req.Details,
		})
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, agreement)
	}
}

type termsRequest struct {
	FeePercent          *float64 `json:"fee_percent"`
	GuaranteeDays       *int     `json:"guarantee_days"`
	VerbiageChangeNotes *string  `json:"verbiage_change_notes"`
}

func (h *Handler) UpdateTerms(c *gin.Context) {
	actor, err := actorFrom(c)
	if err != nil {
		c.Error(err)
		return
	}

	var req termsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	agreement, err := h.service.UpdateTerms(c.Request.Context(), c.Param("id"), TermUpdate{
		FeePercent:          req.FeePercent,
		GuaranteeDays:       req.GuaranteeDays,
		VerbiageChangeNotes: req.VerbiageChangeNotes,
		Actor:               actor,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, agreement)
}

func (h *Handler) Get(c *gin.Context) {
	agreement, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, agreement)
}

func (h *Handler) History(c *gin.Context) {
	rows, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}
