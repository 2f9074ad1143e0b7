package http

import (
	"net/http"

	"github.com/atinyakov/srun-login/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the portal
// endpoints a SRUN client talks to.
//
// Routes:
//
//	GET /generate_204            → portal.Generate204
//	GET /index_1.html            → portal.Index (302 carrying ac_id)
//	GET /srun_portal_pc          → portal.PortalPage
//	GET /cgi-bin/rad_user_info   → portal.UserInfo
//	GET /cgi-bin/get_challenge   → portal.Challenge
//	GET /cgi-bin/srun_portal     → portal.Portal (login / logout)
//
// Middleware chain (applied in order):
//  1. Recoverer:                  turns panics into 500s
//  2. WithRequestLogging(logger): logs served requests without the query
//  3. ClientIP:                   identifies the caller by address
func NewRouter(portal *PortalHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.ClientIP)

	r.Get("/generate_204", portal.Generate204)
	r.Get("/index_1.html", portal.Index)
	r.Get("/srun_portal_pc", portal.PortalPage)

	r.Route("/cgi-bin", func(r chi.Router) {
		r.Get("/rad_user_info", portal.UserInfo)
		r.Get("/get_challenge", portal.Challenge)
		r.Get("/srun_portal", portal.Portal)
	})

	return r
}
