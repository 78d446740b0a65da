package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/LVYUANSU/book-manage-system/internal/api/http"
	"github.com/LVYUANSU/book-manage-system/internal/auth"
	"github.com/LVYUANSU/book-manage-system/internal/catalog"
	"github.com/LVYUANSU/book-manage-system/internal/config"
	"github.com/LVYUANSU/book-manage-system/internal/db"
	"github.com/LVYUANSU/book-manage-system/internal/eventlog"
	"github.com/LVYUANSU/book-manage-system/internal/exam"
	"github.com/LVYUANSU/book-manage-system/internal/grading"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	grader := grading.NewDefaultGrader(grading.WithEssayPolicy(essayPolicy(cfg.EssayPolicy)))
	events := eventlog.New(dbh)
	examSvc := exam.NewService(exam.NewSQLStore(dbh, cfg.DBDriver), grader, exam.WithEvents(events))
	catSvc := catalog.NewService(catalog.NewSQLStore(dbh))

	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.AdminUser, cfg.AdminPassHash)

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

	r.Post("/auth/login", auth.LoginHandler(authSvc))

	r.Route("/api", func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.Mount(pr, examSvc, catSvc, events)
	})

	log.Printf("listening on %s (mode=%s driver=%s essay=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.EssayPolicy)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}

func essayPolicy(s string) grading.EssayPolicy {
	switch grading.EssayPolicy(s) {
	case grading.EssayCompletion:
		return grading.EssayCompletion
	case grading.EssayKeyword:
		return grading.EssayKeyword
	default:
		return grading.EssayManual
	}
}
