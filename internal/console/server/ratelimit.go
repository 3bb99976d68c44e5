package server

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimit глушит всплески на командном пути. Один глобальный limiter:
// защищаем БД и брокер, а не честность между клиентами.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
