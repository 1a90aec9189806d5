package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/bloodstock_backend/middlewares"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/gin-gonic/gin"
)

type actorSeen struct {
	userId, centerId int
	userName, cid    string
}

func newActorRouter(seen *actorSeen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middlewares.ActorMiddleware())
	r.GET("/", func(c *gin.Context) {
		ctx := c.Request.Context()
		seen.userId, seen.userName = utils.GetActorFromContext(ctx)
		seen.centerId, _ = utils.GetCenterIdFromContext(ctx)
		seen.cid, _ = utils.GetCorrelationIdFromContext(ctx)
		c.Status(http.StatusOK)
	})
	return r
}

func TestActorMiddleware_CopiesHeaders(t *testing.T) {
	var seen actorSeen
	r := newActorRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middlewares.HeaderUserId, "42")
	req.Header.Set(middlewares.HeaderUserName, "Dr Min")
	req.Header.Set(middlewares.HeaderCenterId, "9")
	req.Header.Set(middlewares.HeaderCorrelationId, "cid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen.userId != 42 || seen.userName != "Dr Min" || seen.centerId != 9 || seen.cid != "cid-123" {
		t.Fatalf("context = %+v", seen)
	}
	if got := w.Header().Get(middlewares.HeaderCorrelationId); got != "cid-123" {
		t.Fatalf("correlation id header = %q", got)
	}
}

func TestActorMiddleware_DefaultsAndBadHeaders(t *testing.T) {
	var seen actorSeen
	r := newActorRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middlewares.HeaderUserId, "abc")
	req.Header.Set(middlewares.HeaderCenterId, "-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen.userId != 0 || seen.userName != "System" || seen.centerId != 0 {
		t.Fatalf("context = %+v", seen)
	}
	if seen.cid == "" || w.Header().Get(middlewares.HeaderCorrelationId) != seen.cid {
		t.Fatalf("generated correlation id %q not echoed (header %q)", seen.cid, w.Header().Get(middlewares.HeaderCorrelationId))
	}
}
