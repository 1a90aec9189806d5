package middlewares

import (
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderUserId        = "x-user-id"
	HeaderUserName      = "x-user-name"
	HeaderCenterId      = "x-center-id"
	HeaderCorrelationId = "x-correlation-id"
)

// ActorMiddleware copies the acting user set by the gateway into the request
// context and attaches a correlation id, generating one when absent.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationId))
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, cid)
		c.Header(HeaderCorrelationId, cid)

		if v := strings.TrimSpace(c.GetHeader(HeaderUserId)); v != "" {
			if id, err := strconv.Atoi(v); err == nil && id > 0 {
				ctx = utils.SetUserIdInContext(ctx, id)
			}
		}
		if v := strings.TrimSpace(c.GetHeader(HeaderUserName)); v != "" {
			ctx = utils.SetUserNameInContext(ctx, v)
		}
		if v := strings.TrimSpace(c.GetHeader(HeaderCenterId)); v != "" {
			if id, err := strconv.Atoi(v); err == nil && id > 0 {
				ctx = utils.SetCenterIdInContext(ctx, id)
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
