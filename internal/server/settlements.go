package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	settlementdomain "github.com/smallbiznis/attendly/internal/settlement/domain"
	"go.uber.org/zap"
)

type SettlementHandler struct {
	log         *zap.Logger
	settlements settlementdomain.Service
}

func NewSettlementHandler(log *zap.Logger, settlements settlementdomain.Service) *SettlementHandler {
	return &SettlementHandler{
		log:         log.Named("server.settlements"),
		settlements: settlements,
	}
}

func (h *SettlementHandler) Register(r gin.IRouter) {
	r.POST("/events/:event_id/settlements", h.Generate)
	r.GET("/events/:event_id/settlements", h.List)
	r.GET("/events/:event_id/settlements/export", h.Export)
}

func (h *SettlementHandler) Generate(c *gin.Context) {
	eventID, ok := parseID(c, "event_id")
	if !ok {
		return
	}

	force, _ := strconv.ParseBool(c.Query("force"))

	result, err := h.settlements.Generate(c.Request.Context(), settlementdomain.GenerateRequest{
		EventID: eventID,
		Force:   force,
	})
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *SettlementHandler) List(c *gin.Context) {
	eventID, ok := parseID(c, "event_id")
	if !ok {
		return
	}

	snapshots, err := h.settlements.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

func (h *SettlementHandler) Export(c *gin.Context) {
	eventID, ok := parseID(c, "event_id")
	if !ok {
		return
	}

	data, err := h.settlements.ExportCSV(c.Request.Context(), eventID)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.Header("Content-Disposition", `attachment; filename="settlements-`+eventID.String()+`.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
