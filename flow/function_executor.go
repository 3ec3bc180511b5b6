package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/logging"
	"github.com/hupe1980/agentgate/tool"
)

// CallResult is the outcome of one function call.
type CallResult struct {
	Call     core.FunctionCall
	Response core.FunctionResponse
	Err      error
	Duration time.Duration
}

// Fatal reports whether the failure must abort the run.
func (r CallResult) Fatal() bool { return tool.IsFatal(r.Err) }

// FunctionExecutor executes a batch of function calls. Implementations must:
//   - Respect ctx cancellation
//   - Never panic (recover internally and report an error result)
//   - Return exactly one result per call, in the order of calls
type FunctionExecutor interface {
	Execute(ctx context.Context, tools tool.Set, calls []core.FunctionCall) []CallResult
}

// FunctionExecutorConfig configures the default parallel executor.
type FunctionExecutorConfig struct {
	MaxParallel int           // 0 or <1 => no explicit limit (len(calls))
	Timeout     time.Duration // per call; 0 disables the timeout
	Logger      logging.Logger
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(ctx context.Context, tools tool.Set, calls []core.FunctionCall) []CallResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]CallResult, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeSingle(ctx, tools, calls[0])
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.executeSingle(ctx, tools, fc)
		}(i, calls[i])
	}
	wg.Wait()

	e.cfg.Logger.Debug(
		"tool.batch.completed",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *parallelFunctionExecutor) executeSingle(ctx context.Context, tools tool.Set, fc core.FunctionCall) CallResult {
	start := time.Now()

	var (
		result any
		err    error
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		}
		func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					err = tool.NewFatalToolError(fc.Name, fmt.Sprintf("panic: %v", r), tool.CodeExecution)
					e.cfg.Logger.Error("tool.call.panic", "tool", fc.Name, "recover", r, "stack", string(debug.Stack()))
				}
			}()
			result, err = executeTool(callCtx, tools, fc.Name, fc.Arguments)
			if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				err = tool.NewToolError(fc.Name, fmt.Sprintf("timed out after %s", e.cfg.Timeout), tool.CodeTimeout)
			}
		}()
	}

	dur := time.Since(start)
	logging.LogToolCall(e.cfg.Logger, fc.Name, dur, err)

	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
	if err != nil {
		resp.Response = nil
		resp.Error = errorMessage(err)
	}

	return CallResult{Call: fc, Response: resp, Err: err, Duration: dur}
}

// executeTool centralizes tool lookup and argument decoding.
func executeTool(ctx context.Context, tools tool.Set, toolName, args string) (any, error) {
	impl, ok := tools.Get(toolName)
	if !ok {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("tool %s not found", toolName), tool.CodeNotFound)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, tool.NewToolError(toolName, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(ctx, argMap)
}

// errorMessage returns the message shown to the model for a failed call.
func errorMessage(err error) string {
	var te *tool.ToolError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
