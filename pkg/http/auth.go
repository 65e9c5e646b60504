package xhttp

import (
	"strings"

	"github.com/nimasrn/sms-credits/pkg/jwt"
)

const userIDKey = "user_id"

// AuthMiddleware requires a valid "Authorization: Bearer <jwt>" header and
// stores the token's user id on the request.
func AuthMiddleware(secret string) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			header := string(ctx.Request.Header.Peek("Authorization"))
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(ctx, "missing bearer token")
				return
			}

			claims, err := jwt.ParseToken(strings.TrimSpace(token), secret)
			if err != nil {
				unauthorized(ctx, "invalid or expired token")
				return
			}

			ctx.SetUserValue(userIDKey, claims.UserID)
			next(ctx)
		}
	}
}

// UserID returns the authenticated user set by AuthMiddleware.
func UserID(ctx *RequestCtx) (int64, bool) {
	id, ok := ctx.UserValue(userIDKey).(int64)
	return id, ok && id > 0
}

// WithUserID is used by tests and internal callers that authenticate differently.
func WithUserID(ctx *RequestCtx, id int64) {
	ctx.SetUserValue(userIDKey, id)
}

func unauthorized(ctx *RequestCtx, msg string) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(StatusUnauthorized)
	ctx.Response.SetBodyString(`{"error":"` + msg + `"}`)
}
