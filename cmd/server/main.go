package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/erazemk/najdeno/internal/api"
	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/store"
	"github.com/erazemk/najdeno/internal/ws"
)

// env returns the environment value for key, or fallback.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	addr := flag.String("addr", env("NAJDENO_ADDR", ":8080"), "listen address")
	dbPath := flag.String("db", env("NAJDENO_DB", "najdeno.sqlite3"), "path to SQLite database file")
	jwtSecret := flag.String("jwt-secret", env("NAJDENO_JWT_SECRET", ""),
		"JWT signing key (persisted in the database if empty)")
	corsOrigins := flag.String("cors-origins", env("NAJDENO_CORS_ORIGINS", "http://localhost:5173"),
		"comma-separated allowed CORS origins")
	flag.Parse()

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Without an explicit secret, use one stored alongside the data so
	// tokens survive restarts.
	if *jwtSecret == "" {
		secret, err := store.GetJWTSecret(context.Background(), database)
		if err != nil {
			log.Fatalf("Failed to load JWT secret: %v", err)
		}
		*jwtSecret = secret
	}

	hub := ws.NewHub()
	router := api.NewRouter(database, hub, *jwtSecret)

	corsMW := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(*corsOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	handler := api.LoggingMiddleware(api.MetricsMiddleware(corsMW.Handler(router)))

	fmt.Printf("Server listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
