package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/board-service/internal/transport/http/middleware"
)

type RouterConfig struct {
	AllowedOrigins []string
}

func NewRouter(h *Handler, ws http.HandlerFunc, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.RequestID)
	r.Use(httpmw.Tracing)
	r.Use(httpmw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		ExposedHeaders:   []string{httpmw.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint, /socket для старых клиентов
	r.Get("/ws", ws)
	r.Get("/socket", ws)

	r.Group(func(api chi.Router) {
		api.Use(middlewareChi.Timeout(30 * time.Second))

		api.Route("/api/rooms", func(rm chi.Router) {
			rm.Post("/create", h.CreateRoom)
			rm.Get("/public", h.ListPublicRooms)

			rm.Route("/{roomId}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Put("/name", h.RenameRoom)
				rr.Put("/visibility", h.ToggleVisibility)
				rr.Delete("/", h.DeleteRoom)
				rr.Get("/access", h.CheckAccess)
			})
		})
		api.Get("/api/user/id", h.UserID)
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server is running"})
	})

	return r
}
