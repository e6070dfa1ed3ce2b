package middleware

import (
	"context"
	"net/http"
)

type peerAddrKey struct{}

// PeerAddr records the TCP peer address before anything rewrites
// r.RemoteAddr. It must run ahead of chi's RealIP, which replaces
// RemoteAddr with whatever X-Forwarded-For or X-Real-IP the client sent.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// peerAddrFrom returns the address PeerAddr recorded, if it ran.
func peerAddrFrom(ctx context.Context) (string, bool) {
	addr, ok := ctx.Value(peerAddrKey{}).(string)
	return addr, ok && addr != ""
}
