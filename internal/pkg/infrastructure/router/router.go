package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Router interface {
	Start(port string) error
}

type routerStruct struct {
	router chi.Router
	log    zerolog.Logger
}

func SetupRouter(chiRouter chi.Router, log zerolog.Logger) Router {
	return setupRouter(chiRouter, log)
}

func setupRouter(chiRouter chi.Router, log zerolog.Logger) *routerStruct {
	r := &routerStruct{
		router: chiRouter,
		log:    log,
	}

	chiRouter.Use(middleware.Recoverer)
	chiRouter.Get("/health", r.health)
	chiRouter.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func (r *routerStruct) Start(port string) error {
	r.log.Info().Str("port", port).Msg("starting to listen for connections")
	return http.ListenAndServe(fmt.Sprintf(":%s", port), r.router)
}

func (router *routerStruct) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
