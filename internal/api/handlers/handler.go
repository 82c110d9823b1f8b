// handler.go — сборка всех HTTP endpoints Link Gateway.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler собирает доменные handlers и монтирует их на роутер.
type Handler struct {
	files  *FilesHandler
	player *PlayerHandler
	links  *LinksHandler
	health *HealthHandler
	// authMW защищает API выдачи ссылок; nil, если JWKS не настроен
	authMW func(http.Handler) http.Handler
}

// NewHandler создаёт единый handler для всех endpoints.
// authMW может быть nil: тогда POST /api/v1/links доступен без токена
// (dev-окружение без IdP).
func NewHandler(
	files *FilesHandler,
	player *PlayerHandler,
	links *LinksHandler,
	health *HealthHandler,
	authMW func(http.Handler) http.Handler,
) *Handler {
	return &Handler{
		files:  files,
		player: player,
		links:  links,
		health: health,
		authMW: authMW,
	}
}

// Routes монтирует все endpoints на роутер.
func (h *Handler) Routes(r chi.Router) {
	// Служебные endpoints
	r.Get("/health", h.health.Health)
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	// API выдачи ссылок (JWT, если настроен)
	r.Group(func(r chi.Router) {
		if h.authMW != nil {
			r.Use(h.authMW)
		}
		r.Post("/api/v1/links", h.links.CreateLink)
	})

	// Публичные endpoints отдачи файлов. Токен — единственная
	// авторизация: кто знает ссылку, тот имеет доступ.
	for _, route := range []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"/download/{token}", h.files.Download},
		{"/download/{token}/{filename}", h.files.Download},
		{"/stream/{token}", h.files.Stream},
		{"/stream/{token}/{filename}", h.files.Stream},
	} {
		r.Get(route.pattern, route.handler)
		r.Head(route.pattern, route.handler)
	}

	r.Get("/play/{token}", h.player.Play)
	r.Get("/play/{token}/{filename}", h.player.Play)
}
