package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/LVYUANSU/book-manage-system/internal/catalog"
	"github.com/LVYUANSU/book-manage-system/internal/eventlog"
	"github.com/LVYUANSU/book-manage-system/internal/exam"
)

// Mount attaches all /api routes. Callers wrap the router with the JWT
// middleware before mounting.
func Mount(r chi.Router, svc *exam.Service, cat *catalog.Service, events *eventlog.Repo) {
	r.Route("/questions", func(qr chi.Router) {
		qr.Post("/", CreateQuestionHandler(svc))
		qr.Get("/", ListQuestionsHandler(svc))
		qr.Put("/{questionID}", UpdateQuestionHandler(svc))
		qr.Post("/batch-delete", DeleteQuestionsHandler(svc))
	})

	r.Route("/papers", func(pr chi.Router) {
		pr.Post("/", CreatePaperHandler(svc))
		pr.Get("/", ListPapersHandler(svc))
		pr.Post("/batch-delete", DeletePapersHandler(svc))
		pr.Get("/{paperID}", GetPaperHandler(svc))
		pr.Put("/{paperID}", UpdatePaperHandler(svc))
		pr.Get("/{paperID}/questions", ListPaperQuestionsHandler(svc))
		pr.Post("/{paperID}/questions", AddPaperQuestionsHandler(svc))
		pr.Post("/{paperID}/questions/remove", RemovePaperQuestionsHandler(svc))
	})

	r.Route("/attempts", func(ar chi.Router) {
		ar.Post("/", BeginAttemptHandler(svc))
		ar.Get("/", ListAttemptsHandler(svc))
		ar.Get("/{attemptID}", GetAttemptHandler(svc))
		ar.Put("/{attemptID}/answers/{questionID}", SubmitAnswerHandler(svc))
		ar.Post("/{attemptID}/submit", FinishAttemptHandler(svc))
		ar.Get("/{attemptID}/records", ListAttemptRecordsHandler(svc))
		ar.Post("/{attemptID}/grades", ApplyManualGradesHandler(svc))
	})

	r.Route("/books", func(br chi.Router) {
		br.Post("/", SaveBookHandler(cat))
		br.Get("/", QueryBooksHandler(cat))
		br.Put("/{bookID}", UpdateBookHandler(cat))
		br.Post("/batch-delete", DeleteBooksHandler(cat))
	})

	r.Route("/subjects", func(sr chi.Router) {
		sr.Post("/", SaveSubjectHandler(cat))
		sr.Get("/", ListSubjectsHandler(cat))
		sr.Put("/{subjectID}", UpdateSubjectHandler(cat))
		sr.Post("/batch-delete", DeleteSubjectsHandler(cat))
	})

	r.Get("/events", ListEventsHandler(events))
}
