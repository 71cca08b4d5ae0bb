package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/filter"
	"github.com/af-corp/protobridge/internal/types"
)

const query = "[data.bridge.policy.allow, data.bridge.policy.reason]"

// PolicyInput is the data sent to OPA for evaluation.
type PolicyInput struct {
	Client  PolicyClient `json:"client"`
	Request PolicyReq    `json:"request"`
	Time    PolicyTime   `json:"time"`
}

type PolicyClient struct {
	ID    string `json:"id"`
	KeyID string `json:"key_id"`
}

type PolicyProtocol struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type PolicyReq struct {
	Source     PolicyProtocol `json:"source"`
	Target     PolicyProtocol `json:"target"`
	Direction  string         `json:"direction"`
	Validation string         `json:"validation"`
}

type PolicyTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Evaluator implements filter.Filter using OPA.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyFilterConfig
	now      func() time.Time
}

// NewEvaluator creates a policy evaluator. Call Load() to compile policies.
func NewEvaluator(cfg func() config.PolicyFilterConfig) *Evaluator {
	return &Evaluator{cfg: cfg, now: time.Now}
}

func (e *Evaluator) Name() string  { return "policy" }
func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the bundle path.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadModules(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from provided module sources.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against the given input.
func (e *Evaluator) Evaluate(ctx context.Context, input PolicyInput) (bool, string, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		// No policies loaded, fail closed
		return false, "no policies loaded", nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Sprintf("policy evaluation error: %v", err), err
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	// Result is [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)

	return allowed, reason, nil
}

// InputFor builds the policy input for a conversion request.
func (e *Evaluator) InputFor(req *types.ConversionRequest) PolicyInput {
	now := e.now().UTC()
	direction := req.Direction
	if direction == "" {
		direction = types.DirectionForward
	}
	validation := types.ValidationStrict
	if !req.Context.IsStrict() {
		validation = types.ValidationLenient
	}
	return PolicyInput{
		Client: PolicyClient{ID: req.ClientID, KeyID: req.KeyID},
		Request: PolicyReq{
			Source:     PolicyProtocol{Name: req.Source.Name, Version: req.Source.Version},
			Target:     PolicyProtocol{Name: req.Target.Name, Version: req.Target.Version},
			Direction:  string(direction),
			Validation: string(validation),
		},
		Time: PolicyTime{
			Hour: now.Hour(),
			Day:  now.Weekday().String(),
		},
	}
}

// ScanRequest implements filter.Filter.
func (e *Evaluator) ScanRequest(ctx context.Context, req *types.ConversionRequest) filter.Result {
	allowed, reason, err := e.Evaluate(ctx, e.InputFor(req))
	if err != nil {
		slog.Error("policy evaluation failed", "request_id", req.RequestID, "error", err)
		// Fail closed
		return filter.Result{
			Action:     filter.ActionBlock,
			FilterName: "policy",
			Message:    "Policy evaluation failed: " + err.Error(),
		}
	}

	if !allowed {
		return filter.Result{
			Action:     filter.ActionBlock,
			FilterName: "policy",
			Message:    "Conversion denied by policy: " + reason,
		}
	}

	return filter.Result{Action: filter.ActionPass, FilterName: "policy"}
}
