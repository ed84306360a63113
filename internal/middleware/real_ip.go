package middleware

import (
	"net/http"
	"net/netip"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRealIPMiddleware は直接の接続元が信頼済みプロキシの場合に限り、
// chiのRealIPで転送ヘッダー（True-Client-IP / X-Real-IP / X-Forwarded-For）からRemoteAddrを書き換える。
// trustedが空の場合は転送ヘッダーを一切参照しない。
// ログインのレート制限はRemoteAddrをキーにするため、任意のクライアントのヘッダーを信頼してはならない。
func NewRealIPMiddleware(trusted []netip.Prefix) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		realIP := chimw.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isTrustedPeer(r.RemoteAddr, trusted) {
				realIP.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isTrustedPeer はRemoteAddrのIPがtrustedのいずれかに含まれるかを判定する。
func isTrustedPeer(remoteAddr string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}

	var addr netip.Addr
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		addr = ap.Addr()
	} else if a, err := netip.ParseAddr(remoteAddr); err == nil {
		addr = a
	} else {
		return false
	}
	addr = addr.Unmap()

	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
