package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-room-backend/internal/hub"
	"github.com/DoyleJ11/coop-room-backend/internal/metrics"
	"github.com/DoyleJ11/coop-room-backend/internal/ws"
)

type Deps struct {
	Hub     *hub.Hub
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	CORSAllow []string
	WS        ws.Config
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: d.CORSAllow,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/rooms", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Post("/", CreateRoom(d.Hub, d.Logger))
		r.Get("/", ListRooms(d.Hub))
		r.Get("/{roomCode}", GetRoom(d.Hub))
	})

	r.Get("/ws/{roomCode}", ws.Handler(d.Hub, d.WS, d.Logger))
	return r
}

// requestLogger logs one line per request. Upgraded websocket requests are
// logged when the session ends.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http.request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
