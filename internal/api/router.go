package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/najdeno/internal/cache"
	"github.com/erazemk/najdeno/internal/ws"
)

// listingCacheTTL bounds how stale a cached item listing may get.
const listingCacheTTL = 60 * time.Second

// geocodeCacheTTL is long: street addresses do not move.
const geocodeCacheTTL = 24 * time.Hour

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, hub *ws.Hub, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	itemsHandler := &ItemsHandler{DB: db, Cache: cache.New(listingCacheTTL)}
	matchesHandler := &MatchesHandler{DB: db, Notifier: hub}
	messagesHandler := &MessagesHandler{DB: db, Notifier: hub}
	searchesHandler := &SearchesHandler{DB: db}
	geocodeHandler := NewGeocodeHandler(cache.New(geocodeCacheTTL))

	authMW := AuthMiddleware(jwtSecret, db)
	optionalMW := OptionalAuthMiddleware(jwtSecret, db)
	loginLimit := RateLimitMiddleware()

	// Public: account creation and login, rate limited per IP.
	mux.Handle("POST /api/auth/register", loginLimit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", loginLimit(http.HandlerFunc(authHandler.Login)))

	// Session and profile.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/auth/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PUT /api/auth/me", authMW(http.HandlerFunc(authHandler.UpdateMe)))

	// Items: browsing is public, writes belong to the owner.
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.HandleFunc("GET /api/items/{id}", itemsHandler.Get)
	mux.Handle("GET /api/items/user/{id}", optionalMW(http.HandlerFunc(itemsHandler.ListByUser)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))
	mux.Handle("GET /api/items/{id}/candidates", authMW(http.HandlerFunc(itemsHandler.Candidates)))
	mux.Handle("POST /api/items/{id}/images", authMW(http.HandlerFunc(itemsHandler.UploadImage)))
	mux.HandleFunc("GET /api/items/{id}/images/{imageID}", itemsHandler.GetImage)

	// Matches.
	mux.Handle("POST /api/matches", authMW(http.HandlerFunc(matchesHandler.Create)))
	mux.Handle("GET /api/matches", authMW(http.HandlerFunc(matchesHandler.List)))
	mux.Handle("GET /api/matches/{id}", authMW(http.HandlerFunc(matchesHandler.Get)))
	mux.Handle("PUT /api/matches/{id}/status", authMW(http.HandlerFunc(matchesHandler.UpdateStatus)))
	mux.Handle("DELETE /api/matches/{id}", authMW(http.HandlerFunc(matchesHandler.Delete)))

	// Messages.
	mux.Handle("POST /api/messages", authMW(http.HandlerFunc(messagesHandler.Send)))
	mux.Handle("GET /api/messages/conversations", authMW(http.HandlerFunc(messagesHandler.Conversations)))
	mux.Handle("GET /api/messages/unread", authMW(http.HandlerFunc(messagesHandler.Unread)))
	mux.Handle("GET /api/messages/match/{id}", authMW(http.HandlerFunc(messagesHandler.List)))
	mux.Handle("PUT /api/messages/match/{id}/read", authMW(http.HandlerFunc(messagesHandler.MarkRead)))

	// Saved searches.
	mux.Handle("POST /api/searches", authMW(http.HandlerFunc(searchesHandler.Create)))
	mux.Handle("GET /api/searches", authMW(http.HandlerFunc(searchesHandler.List)))
	mux.Handle("DELETE /api/searches/{id}", authMW(http.HandlerFunc(searchesHandler.Delete)))

	// Geocoding proxy.
	mux.Handle("POST /api/geocode", authMW(http.HandlerFunc(geocodeHandler.Geocode)))

	// Real-time delivery.
	mux.Handle("GET /ws", &ws.Handler{DB: db, Hub: hub, JWTSecret: jwtSecret})

	// Operational endpoints.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
