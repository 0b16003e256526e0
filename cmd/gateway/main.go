package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/grk-zapadnaya/assessment/internal/api/http"
	"github.com/grk-zapadnaya/assessment/internal/assessment"
	"github.com/grk-zapadnaya/assessment/internal/auth"
	"github.com/grk-zapadnaya/assessment/internal/config"
	"github.com/grk-zapadnaya/assessment/internal/db"
	"github.com/grk-zapadnaya/assessment/internal/eventlog"
	"github.com/grk-zapadnaya/assessment/internal/rbac"
	"github.com/grk-zapadnaya/assessment/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	definitions := assessment.NewSQLDefinitionStore(dbh)
	history := assessment.NewSQLResultHistory(dbh)
	registry := assessment.NewSQLProtocolRegistry(dbh, time.Now)
	events := eventlog.NewRepo(dbh)

	factory := session.NewFactory(definitions, time.Now)
	manager := api.NewManager(factory, history, registry, events, time.Now)

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.AdminLoginHandler(authSvc, cfg.AdminUser, cfg.AdminPassHash))
	r.Post("/auth/listener", auth.ListenerLoginHandler(authSvc))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Admin: author definitions
		pr.With(rbac.Require("test:create")).Post("/tests", api.CreateTestHandler(definitions))
		pr.With(rbac.Require("test:create")).Put("/tests/{testID}", api.UpdateTestHandler(definitions))
		pr.With(rbac.Require("test:delete")).Delete("/tests/{testID}", api.DeleteTestHandler(definitions))

		// Listener/admin: browse and run
		pr.With(rbac.Require("test:view")).Get("/tests", api.ListTestsHandler(definitions))
		pr.With(rbac.Require("test:view")).Get("/tests/{testID}", api.GetTestHandler(definitions))

		pr.With(rbac.Require("session:start")).Post("/sessions", manager.StartSessionHandler())
		pr.With(rbac.Require("session:answer")).Post("/sessions/{sessionID}/answers", manager.AnswerHandler())
		pr.With(rbac.Require("session:answer")).Post("/sessions/{sessionID}/seek", manager.SeekHandler())
		pr.With(rbac.Require("session:answer")).Get("/sessions/{sessionID}", manager.GetSessionHandler())
		pr.With(rbac.Require("session:finish")).Post("/sessions/{sessionID}/finish", manager.FinishHandler())
		pr.With(rbac.Require("session:finish")).Delete("/sessions/{sessionID}", manager.AbandonHandler())

		pr.With(rbac.Require("results:view")).Get("/results", api.ListResultsHandler(history))
		pr.With(rbac.Require("results:view")).Get("/results/stats", api.StatsHandler(history))
		pr.With(rbac.Require("results:view")).Get("/protocols", api.ListProtocolsHandler(registry))
		pr.With(rbac.Require("protocols:purge")).Delete("/protocols", api.PurgeProtocolsHandler(registry))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s, org=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.OrgName)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
