package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/dto"
	"github.com/docgen/docgen-sub000/internal/adapters/primary/http/middleware"
	"github.com/docgen/docgen-sub000/internal/core/port"
)

// jwksReachableWindow bounds how stale a successful JWKS fetch may be
// before /readyz considers it unreachable.
const jwksReachableWindow = 10 * time.Minute

// HealthController implements GET /healthz and GET /readyz, per §4.12's
// "(a) JWKS reachable, (b) record-store auth succeeds, (c) secrets
// loaded" readiness contract.
type HealthController struct {
	jwks          middleware.JWKSChecker
	recordStore   port.RecordStoreAuthChecker
	secretsLoaded bool
	authBypassed  bool // dev-only: JWKS is never consulted when auth is bypassed
}

func NewHealthController(jwks middleware.JWKSChecker, recordStore port.RecordStoreAuthChecker, secretsLoaded, authBypassed bool) *HealthController {
	return &HealthController{jwks: jwks, recordStore: recordStore, secretsLoaded: secretsLoaded, authBypassed: authBypassed}
}

func (c *HealthController) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", c.Healthz)
	engine.GET("/readyz", c.Readyz)
}

// Healthz reports liveness only.
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /healthz [get]
func (c *HealthController) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Readyz reports readiness across the three checks named in §4.12.
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} dto.ReadyResponse
// @Failure 503 {object} dto.ReadyResponse
// @Router /readyz [get]
func (c *HealthController) Readyz(ctx *gin.Context) {
	checks := dto.ReadyChecks{
		JWKS:    c.authBypassed || c.jwks == nil || c.jwks.LastReachable(jwksReachableWindow),
		Records: c.recordStore == nil || c.recordStore.CheckAuth(ctx.Request.Context()) == nil,
		Secrets: c.secretsLoaded,
	}
	ready := checks.JWKS && checks.Records && checks.Secrets

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, dto.ReadyResponse{Ready: ready, Checks: checks})
}
