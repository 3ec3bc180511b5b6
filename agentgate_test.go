package agentgate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/dispatch"
	"github.com/hupe1980/agentgate/internal/testutil"
	"github.com/hupe1980/agentgate/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("echo", core.ConstructorFunc(func(userMessage string, _ *core.Conversation) (core.Agent, error) {
		return &testutil.StubAgent{
			AgentName: "echo",
			Events:    testutil.NewEventBuilder().Tokens("you said: ").Final(userMessage).Build(),
		}, nil
	})))
	return reg
}

func TestGateway_Invoke(t *testing.T) {
	g, err := New(func(o *Options) {
		o.Registry = newRegistry(t)
		o.DefaultAgent = "echo"
	})
	require.NoError(t, err)
	assert.True(t, g.Registry().Sealed())

	res, err := g.Invoke(context.Background(), dispatch.Request{
		Model:    "whatever",
		Messages: []core.Message{{Role: core.RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "you said: ping", res.Text)
	assert.Equal(t, "stop", res.FinishReason)
}

func TestGateway_InvokeWithoutDefault(t *testing.T) {
	g, err := New(func(o *Options) { o.Registry = newRegistry(t) })
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), dispatch.Request{
		Model:    "whatever",
		Messages: []core.Message{{Role: core.RoleUser, Content: "ping"}},
	})
	assert.True(t, errors.Is(err, core.ErrAgentNotFound))
}

func TestGateway_UnknownDefaultAgent(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Registry = newRegistry(t)
		o.DefaultAgent = "missing"
	})
	assert.True(t, errors.Is(err, core.ErrAgentNotFound))
}

func TestGateway_Handler(t *testing.T) {
	g, err := New(func(o *Options) { o.Registry = newRegistry(t) })
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"echo","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"you said: "`)
	assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
}

func TestGateway_AgentDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chain.yaml"), []byte("name: twice\npipeline: [echo, echo]\n"), 0o600))

	g, err := New(func(o *Options) {
		o.Registry = newRegistry(t)
		o.AgentDir = dir
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "twice"}, g.Registry().Names())

	res, err := g.Invoke(context.Background(), dispatch.Request{
		Model:    "twice",
		Messages: []core.Message{{Role: core.RoleUser, Content: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "you said: you said: x", res.Text)
}

func TestGateway_BadAgentDir(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Registry = newRegistry(t)
		o.AgentDir = filepath.Join(t.TempDir(), "missing")
	})
	assert.Error(t, err)
}
