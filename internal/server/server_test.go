package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/recyclesim/internal/audit/domain"
	auditrepo "github.com/smallbiznis/recyclesim/internal/audit/repository"
	auditservice "github.com/smallbiznis/recyclesim/internal/audit/service"
	"github.com/smallbiznis/recyclesim/internal/config"
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	creditsrepo "github.com/smallbiznis/recyclesim/internal/credits/repository"
	creditsservice "github.com/smallbiznis/recyclesim/internal/credits/service"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/events"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	recyclerservice "github.com/smallbiznis/recyclesim/internal/recycler/service"
	"github.com/smallbiznis/recyclesim/internal/routeworker"
	"github.com/smallbiznis/recyclesim/internal/simtest"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	h      *simtest.Harness
	engine *gin.Engine
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := simtest.New(t, &creditsdomain.PlayerCredit{}, &creditsdomain.ProcessedEvent{}, &auditdomain.AuditLog{})
	credits := creditsservice.New(creditsservice.Params{
		DB:    h.DB,
		Log:   h.Log,
		Clock: h.Clock,
		Repo:  creditsrepo.Provide(),
	})
	h.Local.Subscribe(events.TypeDeliveryCompleted, credits)

	worker := routeworker.New(routeworker.Params{
		DB:         h.DB,
		Log:        h.Log,
		Clock:      h.Clock,
		GenID:      h.Node,
		Config:     routeworker.DefaultConfig(),
		Deliveries: h.Deliveries,
		Recyclers:  h.Recyclers,
		Leases:     h.Leases,
		Engine:     h.Engine,
		Metrics:    h.Metrics,
	})

	recyclers := recyclerservice.New(recyclerservice.Params{
		DB:     h.DB,
		Log:    h.Log,
		Clock:  h.Clock,
		Repo:   h.Recyclers,
		Ledger: h.Ledger,
	})
	audits := auditservice.NewService(auditservice.Params{
		DB:    h.DB,
		Log:   h.Log,
		Clock: h.Clock,
		GenID: h.Node,
		Repo:  auditrepo.Provide(),
	})

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:         r,
		Cfg:         cfg,
		DB:          h.DB,
		TruckSvc:    h.TruckSvc,
		DeliverySvc: h.DeliverySvc,
		RecyclerSvc: recyclers,
		CreditsSvc:  credits,
		AuditSvc:    audits,
		Worker:      worker,
		Dispatcher:  h.Dispatcher,
		Outbox:      h.Outbox,
	})

	return &testServer{h: h, engine: r}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

func TestProcessNextWithNoWork(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeData[processNextResponse](t, rec)
	assert.Equal(t, routeworker.StatusNoWork, resp.Status)
	assert.Empty(t, resp.DeliveryID)
}

func TestSubmitThenProcessNextSettles(t *testing.T) {
	s := newTestServer(t, config.Config{})
	plant, recs := s.h.Plant(t, 100)
	truck := s.h.Truck(t, plant, "player-1")

	rec := s.do(t, http.MethodPost, "/deliveries", deliverydomain.SubmitRequest{
		ReportID:   "r-1",
		TruckID:    truck.ID.String(),
		RecyclerID: recs[0].ID.String(),
		LoadByType: map[string]int64{"plastic": 10, "glass": 5},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	submitted := decodeData[deliverydomain.Response](t, rec)
	assert.Equal(t, deliverydomain.StatusPending, submitted.Status)

	rec = s.do(t, http.MethodPost, "/deliveries", deliverydomain.SubmitRequest{
		ReportID:   "r-1",
		TruckID:    truck.ID.String(),
		LoadByType: map[string]int64{"plastic": 10, "glass": 5},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, submitted.ID, decodeData[deliverydomain.Response](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[processNextResponse](t, rec)
	assert.Equal(t, routeworker.StatusProcessed, resp.Status)
	assert.Equal(t, submitted.ID, resp.DeliveryID)
	assert.Equal(t, "settled", resp.Outcome)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "35", resp.Result.CreditsEarned.String())

	rec = s.do(t, http.MethodGet, "/trucks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trucks := decodeData[[]truckdomain.Response](t, rec)
	require.Len(t, trucks, 1)
	assert.Equal(t, truckdomain.StatusEmpty, trucks[0].Status)

	rec = s.do(t, http.MethodGet, "/recyclers/"+recs[0].ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recycler := decodeData[recyclerdomain.Response](t, rec)
	assert.Equal(t, int64(15), recycler.CurrentLoad)
	assert.Equal(t, int64(85), recycler.Remaining)

	rec = s.do(t, http.MethodGet, "/players/player-1/credits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "35.00", decodeData[creditsdomain.Response](t, rec).Balance)

	rec = s.do(t, http.MethodGet, "/deliveries/"+submitted.ID+"/statement.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestProcessNextReportsTerminalFailureAsSuccess(t *testing.T) {
	s := newTestServer(t, config.Config{})
	plant, recs := s.h.Plant(t, 100)
	id := s.h.Submit(t, s.h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": -3})

	rec := s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[processNextResponse](t, rec)
	assert.Equal(t, id.String(), resp.DeliveryID)
	assert.Equal(t, "terminal", resp.Outcome)
	assert.Equal(t, "invalid_load", resp.Reason)
	assert.Nil(t, resp.Result)

	rec = s.do(t, http.MethodGet, "/deliveries?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decodeData[[]deliverydomain.Response](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "invalid_load", failed[0].FailureReason)

	rec = s.do(t, http.MethodPost, "/admin/deliveries/"+id.String()+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, deliverydomain.StatusPending, decodeData[deliverydomain.Response](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/admin/deliveries/"+id.String()+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/audit-logs?action=delivery.retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeData[[]auditdomain.AuditLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].ActorType)
	require.NotNil(t, logs[0].TargetID)
	assert.Equal(t, id.String(), *logs[0].TargetID)
}

func TestProcessNextCapacityStaysPending(t *testing.T) {
	s := newTestServer(t, config.Config{})
	plant, recs := s.h.Plant(t, 5)
	id := s.h.Submit(t, s.h.Truck(t, plant, "p"), recs[0], map[string]int64{"plastic": 6})

	rec := s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[processNextResponse](t, rec)
	assert.Equal(t, "recoverable", resp.Outcome)
	assert.Equal(t, "capacity_exceeded", resp.Reason)
	assert.Equal(t, deliverydomain.StatusPending, s.h.Delivery(t, id).Status)

	rec = s.do(t, http.MethodPost, "/admin/recyclers/"+recs[0].ID.String()+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeData[recyclerdomain.Response](t, rec).FillCycle)
}

func TestSubmitRejectsMalformedRequests(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := s.do(t, http.MethodPost, "/deliveries", map[string]any{"truck_id": "1", "load_by_type": map[string]int64{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_report_id", payload.Errors[0].Code)
	assert.Equal(t, "report_id", payload.Errors[0].Field)

	req := httptest.NewRequest(http.MethodPost, "/deliveries", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownResourcesAreNotFound(t *testing.T) {
	s := newTestServer(t, config.Config{})
	missing := s.h.Node.Generate().String()

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/deliveries/"+missing, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/trucks/"+missing, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/recyclers/"+missing, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/players/nobody/credits", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/deliveries/not-a-number", nil).Code)
}

func TestTruckTransitionConflict(t *testing.T) {
	s := newTestServer(t, config.Config{})
	plant, _ := s.h.Plant(t, 10)
	truck := s.h.Truck(t, plant, "p")

	rec := s.do(t, http.MethodPost, "/trucks/"+truck.ID.String()+"/transition", truckdomain.TransitionRequest{Status: "idle"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Type)

	rec = s.do(t, http.MethodPost, "/trucks/"+truck.ID.String()+"/transition", truckdomain.TransitionRequest{Status: "flying"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutboxFlushRepublishesFailedEvents(t *testing.T) {
	s := newTestServer(t, config.Config{})
	plant, recs := s.h.Plant(t, 100)
	s.h.Submit(t, s.h.Truck(t, plant, "p"), recs[0], map[string]int64{"glass": 2})
	s.h.Recorder.FailNext(events.TypeTruckLoaded, 1, errors.New("broker down"))

	rec := s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[processNextResponse](t, rec)
	assert.Equal(t, "settled", resp.Outcome)
	assert.Equal(t, "publish_failure", resp.Reason)

	rec = s.do(t, http.MethodGet, "/admin/outbox", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeData[map[string]int64](t, rec)["pending"])

	rec = s.do(t, http.MethodPost, "/admin/outbox/flush", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	flushed := decodeData[map[string]int64](t, rec)
	assert.Equal(t, int64(2), flushed["published"])
	assert.Equal(t, int64(0), flushed["pending"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, config.Config{AdminToken: "s3cret"})

	rec := s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/deliveries/process-next", nil, "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/trucks", nil).Code)
}
