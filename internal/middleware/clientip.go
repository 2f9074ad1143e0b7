// Package middleware provides HTTP middlewares for the fake portal: client
// identification by address and request logging.
package middleware

import (
	"context"
	"net"
	"net/http"
)

type ctxKey string

const clientIPKey ctxKey = "client_ip"

// ClientIP stores the caller's IP address in the request context. The
// portal identifies clients by address, not by account.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ctx := context.WithValue(r.Context(), clientIPKey, host)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIPFromContext returns the address stored by ClientIP, or an empty
// string if there is none.
func GetClientIPFromContext(ctx context.Context) string {
	val := ctx.Value(clientIPKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
