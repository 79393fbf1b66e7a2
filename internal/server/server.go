package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/cors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	fx.In

	Context context.Context

	Config HttpConfig

	Handlers   []*HttpHandler `group:"handlers"`
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
}

type HttpServer struct {
	ctx        context.Context
	host       string
	port       int
	server     *http.Server
	shutdowner fx.Shutdowner
	log        *zap.Logger
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	mux := http.NewServeMux()

	for _, handler := range params.Handlers {
		mux.Handle(handler.Name, handler.Handler)
	}

	var handler http.Handler = mux
	if origins := params.Config.Cors.AllowedOrigins; len(origins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "api-key"},
			MaxAge:         300,
		})(handler)
	}

	if params.Config.H2c {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", params.Config.Host, params.Config.Port),
		Handler: handler,
	}

	return &HttpServer{
		ctx:        params.Context,
		host:       params.Config.Host,
		port:       params.Config.Port,
		server:     server,
		shutdowner: params.Shutdowner,
		log:        params.Logger.Named("http"),
	}
}

func NewLifecycleServer(params HttpServerParams, lc fx.Lifecycle) *HttpServer {
	server := NewHttpServer(params)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go server.Serve(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
	return server
}

func (s *HttpServer) Serve(context.Context) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	cfg := net.ListenConfig{}

	listener, err := cfg.Listen(
		ctx,
		"tcp",
		fmt.Sprintf("%s:%d", s.host, s.port),
	)

	if err != nil {
		s.log.With(zap.Error(err)).Error("failed to listen")
		s.shutdown()
		return err
	}

	s.log.With(zap.String("address", listener.Addr().String())).Info("listening")

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		s.log.With(zap.Error(err)).Error("failed to serve")
		s.shutdown()
		return err
	}

	return nil
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.With(zap.Error(err)).Error("failed to shutdown")
		return err
	}

	return nil
}

// shutdown stops the app if the server cannot serve anymore.
func (s *HttpServer) shutdown() {
	if s.shutdowner == nil {
		return
	}

	if err := s.shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
		s.log.With(zap.Error(err)).Error("failed to request shutdown")
	}
}
