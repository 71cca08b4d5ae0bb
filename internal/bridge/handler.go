package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/af-corp/protobridge/internal/auth"
	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/filter"
	"github.com/af-corp/protobridge/internal/httputil"
	"github.com/af-corp/protobridge/internal/router"
	"github.com/af-corp/protobridge/internal/router/adapters"
	"github.com/af-corp/protobridge/internal/telemetry"
	"github.com/af-corp/protobridge/internal/types"
)

// Handler holds dependencies for the bridge HTTP handlers.
type Handler struct {
	registry      *router.Registry
	healthTracker *router.HealthTracker
	cfg           func() *config.Config
	filterChain   *filter.Chain
	metrics       *telemetry.Metrics
	tracer        trace.Tracer
}

func NewHandler(registry *router.Registry, healthTracker *router.HealthTracker, cfg func() *config.Config, filterChain *filter.Chain, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		registry:      registry,
		healthTracker: healthTracker,
		cfg:           cfg,
		filterChain:   filterChain,
		metrics:       metrics,
		tracer:        telemetry.Tracer(),
	}
}

// requestID returns the ID set by the request ID middleware, or a fresh one.
func requestID(w http.ResponseWriter) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	id := uuid.NewString()
	w.Header().Set("X-Request-ID", id)
	return id
}

// builder returns a chain builder over the live registry that skips edges
// whose circuit is open.
func (h *Handler) builder() *router.ChainBuilder {
	return router.NewChainBuilder(h.registry,
		router.WithMaxExpansions(h.cfg().Routing.MaxExpansions),
		router.WithEdgeFilter(h.healthTracker.EdgeFilter),
	)
}

// Convert handles POST /v1/convert
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	receivedAt := time.Now()
	cfg := h.cfg()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	if cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.ConversionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	req.RequestID = reqID
	req.KeyID = authInfo.KeyID
	req.ClientID = authInfo.ClientID
	req.ReceivedAt = receivedAt

	if req.Source.Name == "" || req.Source.Version == "" {
		httputil.WriteBadRequestError(w, reqID, "source name and version are required")
		return
	}
	if req.Target.Name == "" || req.Target.Version == "" {
		httputil.WriteBadRequestError(w, reqID, "target name and version are required")
		return
	}
	direction, ok := types.ParseDirection(string(req.Direction))
	if !ok {
		httputil.WriteBadRequestError(w, reqID, "direction must be forward or reverse")
		return
	}
	req.Direction = direction
	req.Context = withDefaults(req.Context, direction, cfg.Routing.DefaultValidation)

	if !authInfo.Allows(req.Source, req.Target) {
		slog.Warn("protocol not allowed for key",
			"request_id", reqID,
			"key_id", authInfo.KeyID,
			"source", req.Source.Key(),
			"target", req.Target.Key(),
		)
		httputil.WriteForbiddenError(w, reqID, "API key may not convert "+types.EdgeKey(req.Source, req.Target))
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "bridge.convert", trace.WithAttributes(
		attribute.String("bridge.request_id", reqID),
		attribute.String("bridge.source", req.Source.Key()),
		attribute.String("bridge.target", req.Target.Key()),
		attribute.String("bridge.direction", string(direction)),
	))
	defer span.End()

	record := func(status string, hops int) {
		if h.metrics == nil {
			return
		}
		h.metrics.RecordConversion(telemetry.ConversionLabels{
			Source:     req.Source.Key(),
			Target:     req.Target.Key(),
			Direction:  string(direction),
			Status:     status,
			DurationMs: float64(time.Since(receivedAt).Microseconds()) / 1000,
			Hops:       hops,
		})
	}

	chain, found := h.builder().BuildChain(req.Source, req.Target)
	h.recordLookup(found)
	if !found {
		span.SetStatus(codes.Error, "route not found")
		record("route_not_found", -1)
		httputil.WriteRouteNotFoundError(w, reqID, "No conversion route from "+req.Source.Key()+" to "+req.Target.Key())
		return
	}
	span.SetAttributes(attribute.Int("bridge.hops", chain.Len()), attribute.Float64("bridge.cost", chain.Cost()))

	// Run guard filters (policy, secrets)
	results, blocked := h.filterChain.Run(ctx, &req)
	if blocked != nil {
		slog.Warn("conversion blocked by filter",
			"request_id", reqID,
			"filter", blocked.FilterName,
			"detections", blocked.Detections,
			"client_id", authInfo.ClientID,
		)
		if h.metrics != nil {
			h.metrics.RecordFilterAction(blocked.FilterName, string(blocked.Action))
		}
		span.SetStatus(codes.Error, "blocked by "+blocked.FilterName)
		record("blocked", chain.Len())
		httputil.WriteContentBlockedError(w, reqID, blocked.Message)
		return
	}
	for _, fr := range results {
		if fr.Action == filter.ActionFlag {
			slog.Info("conversion flagged by filter", "request_id", reqID, "filter", fr.FilterName, "detections", fr.Detections)
			if h.metrics != nil {
				h.metrics.RecordFilterAction(fr.FilterName, string(fr.Action))
			}
		}
	}

	var failedEdge string
	chain = chain.With(router.WithObserver(h.stepObserver(reqID, &failedEdge)))

	timeout := cfg.Routing.ConversionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := run(runCtx, chain, direction, req.Data, req.Context)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "timeout")
			record("timeout", chain.Len())
			slog.Warn("conversion timed out", "request_id", reqID, "timeout", timeout.String())
			httputil.WriteTimeoutError(w, reqID, "Conversion exceeded "+timeout.String())
			return
		}
		span.SetStatus(codes.Error, "conversion failed")
		record("conversion_failed", chain.Len())
		slog.Warn("conversion failed",
			"request_id", reqID,
			"edge", failedEdge,
			"direction", string(direction),
			"error", err,
		)
		httputil.WriteConversionError(w, reqID, failedEdge, err.Error())
		return
	}

	record("ok", chain.Len())
	slog.Info("conversion completed",
		"request_id", reqID,
		"source", req.Source.Key(),
		"target", req.Target.Key(),
		"direction", string(direction),
		"hops", chain.Len(),
		"cost", chain.Cost(),
		"duration_ms", time.Since(receivedAt).Milliseconds(),
		"client_id", authInfo.ClientID,
	)

	httputil.WriteJSON(w, http.StatusOK, types.ConversionResponse{
		RequestID: reqID,
		Source:    req.Source.Key(),
		Target:    req.Target.Key(),
		Direction: direction,
		Hops:      chain.Hops(),
		Cost:      chain.Cost(),
		Data:      out,
	})
}

type runResult struct {
	data any
	err  error
}

// run executes the chain and gives up when ctx is done. Adapters are not
// required to observe ctx, so a timed-out chain finishes in the background.
func run(ctx context.Context, chain *router.Chain, direction types.Direction, data any, actx *types.AdapterContext) (any, error) {
	done := make(chan runResult, 1)
	go func() {
		var res runResult
		if direction == types.DirectionReverse {
			res.data, res.err = chain.Reverse(ctx, data, actx)
		} else {
			res.data, res.err = chain.Adapt(ctx, data, actx)
		}
		done <- res
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// withDefaults fills the adapter context with the request direction and the
// configured validation level.
func withDefaults(actx *types.AdapterContext, direction types.Direction, validation string) *types.AdapterContext {
	out := types.AdapterContext{}
	if actx != nil {
		out = *actx
	}
	out.Direction = direction
	if out.ValidationLevel == "" {
		out.ValidationLevel = types.ValidationStrict
		if validation == string(types.ValidationLenient) {
			out.ValidationLevel = types.ValidationLenient
		}
	}
	return &out
}

// stepObserver records metrics, breaker health and a span for each adapter
// invocation. The first failing edge is stored in failed.
func (h *Handler) stepObserver(reqID string, failed *string) router.StepObserver {
	return func(ctx context.Context, a adapters.Adapter, dir types.Direction, elapsed time.Duration, err error) {
		edge := types.EdgeKey(a.Source(), a.Target())

		_, span := h.tracer.Start(ctx, "bridge.step",
			trace.WithTimestamp(time.Now().Add(-elapsed)),
			trace.WithAttributes(
				attribute.String("bridge.edge", edge),
				attribute.String("bridge.direction", string(dir)),
			),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if h.metrics != nil {
			h.metrics.RecordStep(edge, string(dir), float64(elapsed.Microseconds())/1000, err != nil)
		}

		switch {
		case err == nil:
			h.healthTracker.RecordSuccess(edge)
		case isCallerError(err):
			// caller input errors do not count against the edge
		default:
			h.healthTracker.RecordFailure(edge)
		}

		if err != nil && *failed == "" {
			*failed = edge
			slog.Debug("adapter step failed", "request_id", reqID, "edge", edge, "direction", string(dir), "error", err)
		}
	}
}

func isCallerError(err error) bool {
	return errors.Is(err, adapters.ErrUnsupportedPayload) ||
		errors.Is(err, adapters.ErrEmptyMessage) ||
		errors.Is(err, adapters.ErrInvalidPath) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (h *Handler) recordLookup(found bool) {
	if h.metrics == nil {
		return
	}
	if found {
		h.metrics.RecordRouteLookup("found")
	} else {
		h.metrics.RecordRouteLookup("not_found")
	}
}

// Routes handles GET /v1/routes?source=A@v&target=B@v
func (h *Handler) Routes(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)

	source, err := types.ParseDescriptor(r.URL.Query().Get("source"))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "source: "+err.Error())
		return
	}
	target, err := types.ParseDescriptor(r.URL.Query().Get("target"))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "target: "+err.Error())
		return
	}

	if authInfo, ok := auth.AuthFromContext(r.Context()); ok && !authInfo.Allows(source, target) {
		httputil.WriteForbiddenError(w, reqID, "API key may not convert "+types.EdgeKey(source, target))
		return
	}

	chain, found := h.builder().BuildChain(source, target)
	h.recordLookup(found)
	if !found {
		httputil.WriteRouteNotFoundError(w, reqID, "No conversion route from "+source.Key()+" to "+target.Key())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, types.RouteResponse{
		Source: source.Key(),
		Target: target.Key(),
		Hops:   chain.Hops(),
		Cost:   chain.Cost(),
	})
}

// ListAdapters handles GET /v1/adapters
func (h *Handler) ListAdapters(w http.ResponseWriter, r *http.Request) {
	registered := h.registry.Adapters()
	infos := make([]types.AdapterInfo, 0, len(registered))
	for _, a := range registered {
		infos = append(infos, adapterInfo(a))
	}

	httputil.WriteJSON(w, http.StatusOK, adapterListResponse{
		Object: "list",
		Data:   infos,
	})
}

func adapterInfo(a adapters.Adapter) types.AdapterInfo {
	var caps []string
	caps = append(caps, a.Source().Capabilities...)
	for _, c := range a.Target().Capabilities {
		if !a.Source().HasCapability(c) {
			caps = append(caps, c)
		}
	}
	return types.AdapterInfo{
		Edge:         types.EdgeKey(a.Source(), a.Target()),
		Source:       a.Source().Key(),
		Target:       a.Target().Key(),
		Score:        a.CompatibilityScore(),
		Capabilities: caps,
	}
}

type adapterListResponse struct {
	Object string              `json:"object"`
	Data   []types.AdapterInfo `json:"data"`
}

// Health handles GET /bridge/v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	circuits := h.healthTracker.Snapshot()
	status := "ok"
	for _, c := range circuits {
		if c.State != router.StateClosed.String() {
			status = "degraded"
			break
		}
	}
	if circuits == nil {
		circuits = []router.EdgeStatus{}
	}

	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:   status,
		Adapters: h.registry.Len(),
		Circuits: circuits,
	})
}

type healthResponse struct {
	Status   string              `json:"status"`
	Adapters int                 `json:"adapters"`
	Circuits []router.EdgeStatus `json:"circuits"`
}
