package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig hält die Einstellungen der Ratenbegrenzung.
type RateLimiterConfig struct {
	// Rate ist die erlaubte Anfragerate pro Client in req/sec.
	Rate rate.Limit
	// Burst ist die erlaubte Burst-Größe pro Client.
	Burst int
	// CleanupInterval ist der Takt, in dem inaktive Einträge verfallen.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig liefert die Standardbegrenzung von
// proMinute Anfragen pro Minute und Client.
func DefaultRateLimiterConfig(proMinute int) RateLimiterConfig {
	if proMinute <= 0 {
		proMinute = 120
	}
	return RateLimiterConfig{
		Rate:            rate.Limit(float64(proMinute) / 60.0),
		Burst:           proMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter begrenzt Anfragen pro Client. Authentifizierte Anfragen
// werden pro Admin gezählt, anonyme pro Absender-IP.
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*clientLimiter

	stopCh chan struct{}
}

// NewRateLimiter erzeugt den RateLimiter und startet die Hintergrund-
// Bereinigung inaktiver Einträge.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop beendet die Hintergrund-Bereinigung.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware liefert die Ratenbegrenzungs-Middleware.
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			schluessel := clientSchluessel(r)
			limiter := rl.getOrCreate(schluessel)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.Rate)
				slog.Warn("rate limit exceeded",
					slog.String("client", schluessel),
					slog.String("path", r.URL.Path),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount liefert die Anzahl der verwalteten Einträge.
// Für Tests und Metriken.
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// clientSchluessel bestimmt den Zählschlüssel: Admin-ID, wenn die Anfrage
// authentifiziert ist, sonst die Absender-IP ohne Port.
func clientSchluessel(r *http.Request) string {
	if ident, err := IdentitaetFromContext(r.Context()); err == nil {
		return "admin:" + ident.AdminID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimiter) getOrCreate(schluessel string) *rate.Limiter {
	rl.mu.RLock()
	cl, exists := rl.limiters[schluessel]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		cl.lastAccess = time.Now()
		rl.mu.Unlock()
		return cl.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Doppelprüfung nach Lock-Wechsel.
	if cl, exists := rl.limiters[schluessel]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	rl.limiters[schluessel] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup entfernt Einträge, deren letzter Zugriff länger als das doppelte
// CleanupInterval zurückliegt.
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	for schluessel, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.limiters, schluessel)
		}
	}
	rl.mu.Unlock()
}

// writeRateLimitResponse schreibt 429 mit Retry-After in Sekunden.
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":    "rate_limit_exceeded",
		"message": "Zu viele Anfragen. Bitte später erneut versuchen.",
	})
}
