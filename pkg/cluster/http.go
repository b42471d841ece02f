package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relaygrid/relaygrid/pkg/registry"
	"github.com/relaygrid/relaygrid/pkg/telemetry"
	"github.com/relaygrid/relaygrid/pkg/zone"
)

// ServerOptions configures the registry HTTP API.
type ServerOptions struct {
	// Addr is the listen address, e.g. ":7410". Required.
	Addr string

	// NodeName is reported in resolution replies and health checks.
	NodeName string

	// Registry is the local registry the API fronts. Required.
	Registry *registry.Registry

	// Directory, when set, enables the zone listing endpoint.
	Directory *zone.Directory

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// Server exposes the local registry to peers over HTTP: resolution probes,
// remote invocations, and read-only entry listings.
type Server struct {
	opts ServerOptions
	srv  *http.Server
	log  *telemetry.Logger
}

// NewServer builds the API server. Call Start to begin listening.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	s := &Server{opts: opts, log: opts.Logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/v1/entries", s.handleListEntries)
	router.GET("/v1/entries/:name", s.handleResolveEntry)
	router.POST("/v1/call", s.handleCall)
	if opts.Directory != nil {
		router.GET("/v1/zones", s.handleListZones)
	}
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start listens and serves until Shutdown. It blocks; run it in a
// goroutine.
func (s *Server) Start() error {
	if s.log != nil {
		s.log.Infof("registry API listening on %s", s.opts.Addr)
	}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("registry API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"node":   s.opts.NodeName,
	})
}

func (s *Server) handleListEntries(c *gin.Context) {
	entries := s.opts.Registry.ListAll()
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"name":          e.Name,
			"core":          e.Core,
			"failure_count": e.FailureCount,
			"metadata":      e.Metadata,
			"registered_at": e.RegisteredAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"node":    s.opts.NodeName,
		"entries": out,
	})
}

// handleResolveEntry answers a peer's resolution probe. Only entries the
// local registry would itself hand out are resolvable: degraded and
// unloaded entries answer as if absent would, with their own codes.
func (s *Server) handleResolveEntry(c *gin.Context) {
	name := c.Param("name")

	if _, err := s.opts.Registry.Resolve(name); err != nil {
		writeRegistryError(c, name, err)
		return
	}

	e, err := s.opts.Registry.ResolveEntry(name)
	if err != nil {
		writeRegistryError(c, name, err)
		return
	}

	c.JSON(http.StatusOK, ResolveReply{
		Name:     e.Name,
		Node:     s.opts.NodeName,
		Metadata: e.Metadata,
	})
}

func (s *Server) handleListZones(c *gin.Context) {
	nodes := s.opts.Directory.ListNodes()
	out := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, gin.H{
			"node": n.NodeID,
			"zone": int(n.Zone),
			"tier": n.Zone.String(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled": !s.opts.Directory.Disabled(),
		"local":   s.opts.Directory.LocalNode(),
		"nodes":   out,
	})
}

func (s *Server) handleCall(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorReply{
			Code:   string(registry.ErrCodeRemoteCallFailed),
			Reason: "invalid request body",
		})
		return
	}
	if req.Name == "" || req.Function == "" {
		c.JSON(http.StatusBadRequest, ErrorReply{
			Code:   string(registry.ErrCodeRemoteCallFailed),
			Reason: "name and function are required",
		})
		return
	}

	h, err := s.opts.Registry.Resolve(req.Name)
	if err != nil {
		writeRegistryError(c, req.Name, err)
		return
	}

	inv, ok := h.(registry.Invoker)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, ErrorReply{
			Code:   string(registry.ErrCodeRemoteCallFailed),
			Name:   req.Name,
			Reason: "handler is not invokable",
		})
		return
	}

	result, err := inv.Invoke(c.Request.Context(), req.Function, req.Args)
	if err != nil {
		if s.log != nil {
			s.log.WithEntry(req.Name).WithError(err).Warnf("remote invocation failed")
		}
		c.JSON(http.StatusInternalServerError, ErrorReply{
			Code:   string(registry.ErrCodeRemoteCallFailed),
			Name:   req.Name,
			Reason: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, CallReply{Result: result})
}

func writeRegistryError(c *gin.Context, name string, err error) {
	code := registry.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case registry.ErrCodeNotFound:
		status = http.StatusNotFound
	case registry.ErrCodeModuleNotLoaded, registry.ErrCodeUnstable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ErrorReply{
		Code:   string(code),
		Name:   name,
		Reason: err.Error(),
	})
}

// HTTPTransport is the Transport over the registry HTTP API.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultRemoteCallTimeout
	}
	return &HTTPTransport{
		client: &http.Client{Timeout: timeout},
	}
}

var _ Transport = (*HTTPTransport)(nil)

// ResolveEntry probes the registry at addr for name.
func (t *HTTPTransport) ResolveEntry(ctx context.Context, addr, name string) (*ResolveReply, error) {
	url := fmt.Sprintf("http://%s/v1/entries/%s", addr, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build resolve request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var reply ResolveReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode resolve reply: %w", err)
	}
	return &reply, nil
}

// Call invokes function(args) on name at addr.
func (t *HTTPTransport) Call(ctx context.Context, addr string, callReq CallRequest) (any, error) {
	body, err := json.Marshal(callReq)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call request: %w", err)
	}

	url := fmt.Sprintf("http://%s/v1/call", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var reply CallReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode call reply: %w", err)
	}
	return reply.Result, nil
}

// decodeError turns a non-200 reply back into a typed registry error so
// callers see the same codes a local resolution would produce.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var er ErrorReply
	if err := json.Unmarshal(raw, &er); err != nil || er.Code == "" {
		return fmt.Errorf("peer answered %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return &registry.Error{
		Code:   registry.ErrorCode(er.Code),
		Name:   er.Name,
		Reason: er.Reason,
	}
}
