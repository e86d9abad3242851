/*
Package handler provides the HTTP handlers and routing setup for the TeamChat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/Davnspvtltd/teamchat/internal/pkg/auth/jwt"
	"github.com/Davnspvtltd/teamchat/internal/pkg/limiter"
	"github.com/Davnspvtltd/teamchat/internal/pkg/logx"
	"github.com/Davnspvtltd/teamchat/internal/pkg/resp"
)

const (
	// MessageRate throttles message creation per IP.
	MessageRate  = 5
	MessageBurst = 10

	// ConnectRate throttles websocket upgrade attempts per IP.
	ConnectRate  = 1
	ConnectBurst = 5
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
func Router(deps *AppDeps) http.Handler {
	messageLimiter := limiter.NewIPRateLimiter(rate.Limit(MessageRate), MessageBurst)
	connectLimiter := limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "TeamChat Server",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
		})

		api.Get("/users", HandleListUsers(deps))

		api.Route("/conversations", func(conv chi.Router) {
			conv.Get("/", HandleListConversations(deps))
			conv.Post("/", HandleCreateConversation(deps))
			conv.Post("/direct", HandleDirectConversation(deps))
			conv.Get("/{id}", HandleGetConversation(deps))
			conv.Get("/{id}/members", HandleListMembers(deps))
			conv.Post("/{id}/members", HandleAddMember(deps))
			conv.Delete("/{id}/members/{userId}", HandleRemoveMember(deps))
			conv.Get("/{id}/messages", HandleListMessages(deps))
		})

		api.Route("/messages", func(msg chi.Router) {
			msg.With(messageLimiter.Middleware).Post("/", HandleSendMessage(deps))
			msg.Put("/{id}", HandleEditMessage(deps))
			msg.Delete("/{id}", HandleDeleteMessage(deps))
		})

		api.Route("/files", func(files chi.Router) {
			files.Post("/presign-upload", HandlePresignUpload(deps))
			files.Get("/presign-download", HandlePresignDownload(deps))
			files.Delete("/", HandleDeleteFile(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, connectLimiter, deps))

	return r
}
