package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/berfenger/battseq/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMaster answers like the master actor would, keeping only the target.
func fakeMaster(healthy bool) actor.ReceiveFunc {
	target := domain.START_STOP_UNDEFINED
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetSequencerStatusRequest:
			ctx.Respond(domain.GetSequencerStatusResponse{Status: domain.SequencerStatus{
				State:     "RUNNING",
				StateCode: 11,
				Target:    target.String(),
				StartStop: "START",
			}})
		case domain.SetStartStopTargetRequest:
			changed := msg.Target != target
			target = msg.Target
			ctx.Respond(domain.SetStartStopTargetResponse{Target: target, Changed: changed})
		}
	}
}

func testServer(t *testing.T, healthy bool) http.Handler {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(fakeMaster(healthy)))
	s := &Server{rootContext: as.Root, masterActor: pid}
	return s.RegisterRoutes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {

	rec := do(testServer(t, true), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	rec = do(testServer(t, false), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {

	rec := do(testServer(t, true), http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st domain.SequencerStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "RUNNING", st.State)
	assert.Equal(t, 11, st.StateCode)
	assert.Contains(t, rec.Body.String(), `"start_stop":"START"`)
}

func TestSetTarget(t *testing.T) {

	h := testServer(t, true)

	rec := do(h, http.MethodPut, "/target", `{"target":"start"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp targetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, targetResponse{Target: "START", Changed: true}, resp)

	rec = do(h, http.MethodPut, "/target", `{"target":"START"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Changed)

	rec = do(h, http.MethodGet, "/status", "")
	assert.Contains(t, rec.Body.String(), `"target":"START"`)

	rec = do(h, http.MethodPut, "/target", `{"target":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/target", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPut, "/target", `{"target":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {

	rec := do(testServer(t, true), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
