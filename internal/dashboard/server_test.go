package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manisahni/optionslab-sub000/internal/engine"
	"github.com/manisahni/optionslab-sub000/internal/models"
	"github.com/manisahni/optionslab-sub000/internal/storage"
)

// stubStore serves a single canned run.
type stubStore struct {
	run    storage.RunSummary
	trades []models.ClosedTrade
	equity []models.EquityPoint
	audit  []string
	err    error
}

var _ storage.Interface = (*stubStore)(nil)

func (s *stubStore) SaveRun(context.Context, *engine.Result) (string, error) {
	return "", errors.New("read-only stub")
}

func (s *stubStore) ListRuns(context.Context) ([]storage.RunSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []storage.RunSummary{s.run}, nil
}

func (s *stubStore) GetRun(_ context.Context, id string) (*storage.RunSummary, error) {
	if id != s.run.ID {
		return nil, storage.ErrRunNotFound
	}
	return &s.run, nil
}

func (s *stubStore) LoadTrades(_ context.Context, id string) ([]models.ClosedTrade, error) {
	if id != s.run.ID {
		return nil, storage.ErrRunNotFound
	}
	return s.trades, nil
}

func (s *stubStore) LoadEquity(_ context.Context, id string) ([]models.EquityPoint, error) {
	if id != s.run.ID {
		return nil, storage.ErrRunNotFound
	}
	return s.equity, nil
}

func (s *stubStore) LoadAuditLog(_ context.Context, id string) ([]string, error) {
	if id != s.run.ID {
		return nil, storage.ErrRunNotFound
	}
	return s.audit, nil
}

func (s *stubStore) Close() error { return nil }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testServer(authToken string) (*Server, *stubStore) {
	store := &stubStore{
		run: storage.RunSummary{
			ID:             "run-1",
			Symbol:         "SPY",
			StartDate:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC),
			InitialCapital: 10000,
			FinalValue:     10250,
			TotalTrades:    1,
		},
		trades: []models.ClosedTrade{
			{ID: "t1", Symbol: "SPY", RealizedPnL: 250, Reason: models.ExitReasonProfitTarget},
		},
		equity: []models.EquityPoint{
			{Date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), TotalValue: 10000},
		},
		audit: []string{"2024-03-15 | entry | call-455.00-2024-04-19"},
	}
	return NewServer(Config{Addr: ":0", AuthToken: authToken}, store, quietLogger()), store
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := testServer("")
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Bad health body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestListRuns(t *testing.T) {
	s, _ := testServer("")
	rec := get(t, s, "/api/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs = %d, want 200", rec.Code)
	}

	var runs []storage.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("Bad runs body: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("Unexpected runs payload: %+v", runs)
	}
}

func TestGetRun(t *testing.T) {
	s, _ := testServer("")

	rec := get(t, s, "/api/runs/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runs/run-1 = %d, want 200", rec.Code)
	}
	var run storage.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.Symbol != "SPY" || run.FinalValue != 10250 {
		t.Errorf("Unexpected run payload: %+v", run)
	}

	if rec := get(t, s, "/api/runs/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown run id = %d, want 404", rec.Code)
	}
}

func TestGetTradesAndEquity(t *testing.T) {
	s, _ := testServer("")

	rec := get(t, s, "/api/runs/run-1/trades")
	if rec.Code != http.StatusOK {
		t.Fatalf("trades = %d, want 200", rec.Code)
	}
	var trades []models.ClosedTrade
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].Reason != models.ExitReasonProfitTarget {
		t.Errorf("Unexpected trades payload: %+v", trades)
	}

	rec = get(t, s, "/api/runs/run-1/equity")
	if rec.Code != http.StatusOK {
		t.Fatalf("equity = %d, want 200", rec.Code)
	}
	var curve []models.EquityPoint
	if err := json.Unmarshal(rec.Body.Bytes(), &curve); err != nil {
		t.Fatal(err)
	}
	if len(curve) != 1 || curve[0].TotalValue != 10000 {
		t.Errorf("Unexpected equity payload: %+v", curve)
	}
}

func TestGetAudit(t *testing.T) {
	s, _ := testServer("")
	rec := get(t, s, "/api/runs/run-1/audit")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit = %d, want 200", rec.Code)
	}
	var lines []string
	if err := json.Unmarshal(rec.Body.Bytes(), &lines); err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 {
		t.Errorf("Unexpected audit payload: %+v", lines)
	}
}

func TestStoreErrorIs500(t *testing.T) {
	s, store := testServer("")
	store.err = errors.New("disk on fire")

	if rec := get(t, s, "/api/runs"); rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure = %d, want 500", rec.Code)
	}
}

func TestAuthToken(t *testing.T) {
	s, _ := testServer("sekret")

	t.Run("health bypasses auth", func(t *testing.T) {
		if rec := get(t, s, "/health"); rec.Code != http.StatusOK {
			t.Errorf("health = %d, want 200 without a token", rec.Code)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		if rec := get(t, s, "/api/runs"); rec.Code != http.StatusUnauthorized {
			t.Errorf("no token = %d, want 401", rec.Code)
		}
	})

	t.Run("header token accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		req.Header.Set("X-Auth-Token", "sekret")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("header token = %d, want 200", rec.Code)
		}
	})

	t.Run("query token accepted", func(t *testing.T) {
		if rec := get(t, s, "/api/runs?token=sekret"); rec.Code != http.StatusOK {
			t.Errorf("query token = %d, want 200", rec.Code)
		}
	})
}
