package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.log, s.deps.Processor, s.jobManager)
	studentsHandler := handlers.NewStudentsHandler(s.log, s.deps.Enroller, s.deps.Roster, s.config.Recognition.IdentifyLimit)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Attendance
		r.Post("/attendance/videos", attendanceHandler.Process)
		r.Get("/attendance/jobs", attendanceHandler.ListJobs)
		r.Get("/attendance/jobs/{jobId}", attendanceHandler.Status)
		r.Get("/attendance/jobs/{jobId}/events", attendanceHandler.Events)
		r.Delete("/attendance/jobs/{jobId}", attendanceHandler.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			// Students
			r.Get("/students", studentsHandler.List)
			r.Get("/students/{id}/faces", studentsHandler.ListFaces)
			r.Post("/students/{id}/faces", studentsHandler.Enroll)
			r.Delete("/students/{id}/faces", studentsHandler.DeleteFaces)
			r.Post("/students/{id}/verify", studentsHandler.Verify)

			// Faces
			r.Post("/faces/identify", studentsHandler.Identify)
		})
	})

	// Archived face crops of the local backend
	if s.deps.StorageRoot != "" {
		fileServer := http.StripPrefix("/storage/", http.FileServer(http.Dir(s.deps.StorageRoot)))
		s.router.Get("/storage/*", fileServer.ServeHTTP)
	}
}
