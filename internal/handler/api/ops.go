package api

import (
	"time"

	"ListingRadar/internal/bus"
	"ListingRadar/internal/domain/models"
	drepo "ListingRadar/internal/domain/repository"
	"ListingRadar/internal/registry"
	"ListingRadar/internal/risk"
	"ListingRadar/internal/usecase"
	xhttp "ListingRadar/pkg/http"
	xlogger "ListingRadar/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OpsHandler is the read-mostly inspection surface plus the manual escape
// hatches (close a position, inject a signal). It never mutates engine state
// directly.
type OpsHandler struct {
	logger    *xlogger.Logger
	bus       *bus.Bus
	registry  *registry.Registry
	riskMgr   *risk.Manager
	exits     *usecase.ExitScheduler
	perf      *usecase.PerformanceTracker
	collector *usecase.SignalCollector
	store     drepo.Store
	archive   drepo.TradeArchive
}

func NewOpsHandler(
	logger *xlogger.Logger,
	b *bus.Bus,
	reg *registry.Registry,
	riskMgr *risk.Manager,
	exits *usecase.ExitScheduler,
	perf *usecase.PerformanceTracker,
	collector *usecase.SignalCollector,
	store drepo.Store,
	archive drepo.TradeArchive,
) *OpsHandler {
	return &OpsHandler{
		logger:    logger,
		bus:       b,
		registry:  reg,
		riskMgr:   riskMgr,
		exits:     exits,
		perf:      perf,
		collector: collector,
		store:     store,
		archive:   archive,
	}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/opportunities", h.Opportunities)
	g.GET("/opportunities/:symbol/:stage", h.Opportunity)
	g.GET("/positions", h.Positions)
	g.POST("/positions/:id/close", h.ClosePosition)
	g.POST("/signals", h.InjectSignal)
	g.GET("/performance", h.Performance)
	g.GET("/risk", h.Risk)
	g.GET("/sources/best", h.BestSources)
	g.GET("/trades", h.Trades)
}

func (h *OpsHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	status := map[string]any{"status": "ok"}
	healthy := true
	if err := h.store.Health(ctx); err != nil {
		status["store"] = err.Error()
		healthy = false
	}
	if h.archive != nil {
		if err := h.archive.Health(ctx); err != nil {
			status["archive"] = err.Error()
			healthy = false
		}
	}
	if h.collector != nil {
		status["feed_connected"] = h.collector.IsConnected()
	}
	if !healthy {
		status["status"] = "degraded"
		return xhttp.DataResponse(c, 503, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *OpsHandler) Opportunities(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.registry.ListActive())
}

func (h *OpsHandler) Opportunity(c echo.Context) error {
	key := models.OpportunityKey{
		Symbol: c.Param("symbol"),
		Stage:  models.Stage(c.Param("stage")),
	}
	if !key.Stage.Valid() {
		return xhttp.BadRequestResponse(c, "unknown stage")
	}
	o, ok := h.registry.Get(key)
	if !ok {
		return xhttp.NotFoundResponse(c, "no active opportunity for "+key.String())
	}
	return xhttp.SuccessResponse(c, o)
}

func (h *OpsHandler) Positions(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.exits.Open())
}

func (h *OpsHandler) ClosePosition(c echo.Context) error {
	id := c.Param("id")
	if err := h.exits.CloseNow(id); err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	h.logger.Info("manual close requested", xlogger.String("position", id))
	return xhttp.SuccessResponse(c, map[string]string{"position": id, "state": "closing"})
}

// injectSignalRequest is an operator-submitted signal, for replaying a missed
// feed event or exercising the pipeline in staging.
type injectSignalRequest struct {
	Source   string  `json:"source" validate:"required"`
	Symbol   string  `json:"symbol" validate:"required"`
	Stage    string  `json:"stage" validate:"required"`
	Kind     string  `json:"kind" validate:"required"`
	Strength float64 `json:"strength" validate:"gte=-1,lte=1"`
}

func (h *OpsHandler) InjectSignal(c echo.Context) error {
	req := new(injectSignalRequest)
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig := &models.Signal{
		Source:    req.Source,
		Symbol:    req.Symbol,
		Stage:     models.Stage(req.Stage),
		Kind:      models.SignalKind(req.Kind),
		Strength:  req.Strength,
		Timestamp: time.Now().UTC(),
	}
	if !sig.Stage.Valid() {
		return xhttp.BadRequestResponse(c, "unknown stage")
	}
	if sig.Kind.Priority() == 0 {
		return xhttp.BadRequestResponse(c, "unknown kind")
	}

	res := h.bus.Ingest(c.Request().Context(), sig)
	h.logger.Info("signal injected",
		xlogger.String("key", sig.Key().String()),
		xlogger.String("result", string(res)))
	return xhttp.SuccessResponse(c, map[string]string{"result": string(res)})
}

func (h *OpsHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.perf.Snapshot())
}

func (h *OpsHandler) Risk(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.riskMgr.Snapshot())
}

func (h *OpsHandler) BestSources(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 10)
	return xhttp.SuccessResponse(c, h.perf.BestSources(limit))
}

func (h *OpsHandler) Trades(c echo.Context) error {
	if h.archive == nil {
		return xhttp.NotFoundResponse(c, "archive disabled")
	}
	stage := models.Stage(c.QueryParam("stage"))
	if stage != "" && !stage.Valid() {
		return xhttp.BadRequestResponse(c, "unknown stage")
	}
	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	trades, err := h.archive.QueryClosed(c.Request().Context(), stage, from, to, limit)
	if err != nil {
		h.logger.Error("trade query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, trades)
}
