// Package server hosts the server half of the A2A protocol runtime
// (C4) plus the HTTP listener (C6): JSON-RPC dispatch over POST /rpc,
// SSE streaming for tasks/sendSubscribe, the agent card endpoints, and
// a health check. Grounded in the teacher's pkg/service/agent.go
// fiber wiring, generalised from ai.Agent to the taskstore/a2a
// packages and corrected to the spec's single-request (no batching),
// always-typed-SSE-frame contract.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	fiberadaptor "github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/jsonrpc"
	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

// InboundAuth validates the credential headers presented on an
// incoming request against the scheme the card declares. A nil
// InboundAuth accepts every request, appropriate for a card whose
// only scheme is "none".
type InboundAuth interface {
	Authenticate(apiKeyHeader, authorizationHeader string) bool
}

// StaticKeyAuth accepts a single fixed apiKey or bearer token value,
// sufficient for the demo agent and for tests; real deployments
// supply their own InboundAuth backed by whatever identity system
// issues the credential the card advertises.
type StaticKeyAuth struct {
	Scheme a2a.AuthScheme
	Value  string
}

func (a StaticKeyAuth) Authenticate(apiKeyHeader, authorizationHeader string) bool {
	switch a.Scheme {
	case a2a.AuthSchemeAPIKey:
		return apiKeyHeader == a.Value
	case a2a.AuthSchemeBearer, a2a.AuthSchemeOAuth2:
		const prefix = "Bearer "
		h := authorizationHeader
		return len(h) > len(prefix) && h[:len(prefix)] == prefix && h[len(prefix):] == a.Value
	default:
		return true
	}
}

// Server bundles the task store, dispatch registry, agent card, and
// work handler behind an HTTP listener.
type Server struct {
	Card    a2a.AgentCard
	Store   *taskstore.Store
	Handler TaskHandler
	Logger  *log.Logger
	Auth    InboundAuth

	registry *Registry
	app      *fiber.App

	cancelMu    sync.Mutex
	cancelFuncs map[string]context.CancelFunc
}

// Option configures a Server at construction time.
type Option func(*Server)

func WithHandler(h TaskHandler) Option { return func(s *Server) { s.Handler = h } }
func WithLogger(l *log.Logger) Option  { return func(s *Server) { s.Logger = l } }
func WithAuth(a InboundAuth) Option    { return func(s *Server) { s.Auth = a } }

// New builds a Server for the given card, backed by store. The
// default TaskHandler is EchoHandler, matching the teacher's
// echo-by-default demo wiring.
func New(card a2a.AgentCard, store *taskstore.Store, opts ...Option) *Server {
	s := &Server{
		Card:        card,
		Store:       store,
		Handler:     EchoHandler{},
		Logger:      log.Default(),
		registry:    NewRegistry(),
		cancelFuncs: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:           card.Name,
		ServerHeader:      "AgentVault-Server",
		StreamRequestBody: true,
	})
	s.app.Use(logger.New(logger.Config{
		Next: func(c fiber.Ctx) bool { return c.Path() == "/health" },
	}), healthcheck.NewHealthChecker())
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/.well-known/agent.json", s.handleCard)
	s.app.Get("/agent-card.json", s.handleCard)
	s.app.Post("/rpc", s.handleRPC)

	return s
}

// RegisterMethod exposes the dynamic custom-method registry (C7) to
// callers building on top of Server.
func (s *Server) RegisterMethod(name string, paramSchema []byte, h Handler) error {
	return s.registry.RegisterMethod(name, paramSchema, h)
}

func (s *Server) handleCard(c fiber.Ctx) error {
	return c.JSON(s.Card)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

func (s *Server) authenticate(c fiber.Ctx) bool {
	if s.Auth == nil {
		return true
	}
	return s.Auth.Authenticate(c.Get("X-Api-Key"), c.Get("Authorization"))
}

// handleRPC is the single entry point for the wire protocol: it
// parses the envelope, validates jsonrpc/method/id, and either
// dispatches a JSON result/error or — for tasks/sendSubscribe —
// upgrades the response to an SSE stream.
func (s *Server) handleRPC(c fiber.Ctx) error {
	c.Set("Content-Type", "application/json")

	if !s.authenticate(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(jsonrpc.NewErrorResponse(
			jsonrpc.NullID, jsonrpc.CodeApplication, "authentication failed", nil,
		))
	}

	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusOK).JSON(jsonrpc.NewErrorResponse(
			jsonrpc.NullID, jsonrpc.CodeParseError, "empty request body", nil,
		))
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return c.Status(fiber.StatusOK).JSON(jsonrpc.NewErrorResponse(
			jsonrpc.NullID, jsonrpc.CodeParseError, "malformed json: "+err.Error(), nil,
		))
	}

	if req.JSONRPC != jsonrpc.Version || req.Method == "" || len(req.ID) == 0 {
		return c.Status(fiber.StatusOK).JSON(jsonrpc.NewErrorResponse(
			req.ID, jsonrpc.CodeInvalidRequest, "missing or ill-typed jsonrpc/method/id", nil,
		))
	}

	if req.Method == "tasks/sendSubscribe" {
		var params a2a.TaskIDParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
			return c.Status(fiber.StatusOK).JSON(jsonrpc.NewErrorResponse(
				req.ID, jsonrpc.CodeInvalidParams, "malformed tasks/sendSubscribe params", nil,
			))
		}
		handler := func(w http.ResponseWriter, r *http.Request) {
			s.serveStream(w, r, params.ID)
		}
		return fiberadaptor.HTTPHandler(http.HandlerFunc(handler))(c)
	}

	outcome := s.dispatch(c.Context(), req.Method, req.Params)
	if outcome.isError() {
		status := fiber.StatusOK
		if outcome.code == jsonrpc.CodeInternal {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(jsonrpc.NewErrorResponse(req.ID, outcome.code, outcome.errMsg, outcome.errVal))
	}
	return c.Status(fiber.StatusOK).JSON(jsonrpc.NewResultResponse(req.ID, outcome.result))
}

// Listen starts the HTTP server and blocks until it is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown gracefully drains in-flight requests before returning,
// bounded by ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
