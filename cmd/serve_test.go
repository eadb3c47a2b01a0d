package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactwatch/contract-cli/internal/model"
	"github.com/pactwatch/contract-cli/internal/store"
)

type stubExtractor struct {
	rec model.ContractRecord
	err error
}

func (s *stubExtractor) Extract(_ context.Context, doc model.RawDocument) (*model.ContractRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec := s.rec
	rec.SourceFile = doc.Name
	return &rec, nil
}

type stubDiscoverer struct {
	report model.DiscoveryReport
	err    error
}

func (s *stubDiscoverer) Discover(_ context.Context, _ model.ContractRecord, _ string) (*model.DiscoveryReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	rep := s.report
	return &rep, nil
}

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	return &appEnv{
		Store: st,
		Extractor: &stubExtractor{rec: model.ContractRecord{
			Provider:      "Acme Cloud",
			Service:       "Object Storage",
			EndDate:       "2025-01-01",
			RenewalStatus: model.RenewalAuto,
		}},
		Discoverer: &stubDiscoverer{report: model.DiscoveryReport{
			Report:  "comparison report",
			Sources: []model.SearchResult{{Title: "Wasabi", URL: "https://wasabi.com"}},
		}},
	}
}

func seedContract(t *testing.T, env *appEnv, rec model.ContractRecord) model.ContractRecord {
	t.Helper()
	saved, err := env.Store.SaveContract(context.Background(), rec)
	require.NoError(t, err)
	return *saved
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/contracts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServe_Health(t *testing.T) {
	router := newRouter(newTestEnv(t), 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"ok"`)
}

func TestServe_UploadExtractsAndSaves(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env, 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, uploadRequest(t, "acme.pdf", []byte("%PDF-1.4 fake")))

	require.Equal(t, http.StatusCreated, rr.Code)
	var saved model.ContractRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Acme Cloud", saved.Provider)
	assert.Equal(t, "acme.pdf", saved.SourceFile)

	got, err := env.Store.GetContract(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Cloud", got.Provider)
}

func TestServe_UploadExtractionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Extractor = &stubExtractor{err: errors.New("invalid model output")}
	router := newRouter(env, 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, uploadRequest(t, "bad.pdf", []byte("junk")))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestServe_UploadWithoutExtractor(t *testing.T) {
	env := newTestEnv(t)
	env.Extractor = nil
	router := newRouter(env, 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, uploadRequest(t, "acme.pdf", []byte("data")))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServe_UploadMissingFileField(t *testing.T) {
	router := newRouter(newTestEnv(t), 60)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/contracts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_GetAndList(t *testing.T) {
	env := newTestEnv(t)
	saved := seedContract(t, env, model.ContractRecord{Provider: "Globex", Service: "CRM"})
	router := newRouter(env, 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/contracts/"+saved.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Globex")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/contracts?provider=Globex", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []model.ContractRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)
}

func TestServe_GetNotFound(t *testing.T) {
	router := newRouter(newTestEnv(t), 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/contracts/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_Delete(t *testing.T) {
	env := newTestEnv(t)
	saved := seedContract(t, env, model.ContractRecord{Provider: "Globex"})
	router := newRouter(env, 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/contracts/"+saved.ID, nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/contracts/"+saved.ID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServe_DiscoverSavesRun(t *testing.T) {
	env := newTestEnv(t)
	saved := seedContract(t, env, model.ContractRecord{Provider: "Acme Cloud", Service: "Object Storage"})
	router := newRouter(env, 60)

	body := bytes.NewBufferString(`{"requirement": "cheaper storage"}`)
	req := httptest.NewRequest(http.MethodPost, "/contracts/"+saved.ID+"/discover", body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var run model.DiscoveryRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, saved.ID, run.ContractID)
	assert.Equal(t, "comparison report", run.Result.Report)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/contracts/"+saved.ID+"/discoveries", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.DiscoveryRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestServe_DiscoverMissingRequirement(t *testing.T) {
	env := newTestEnv(t)
	saved := seedContract(t, env, model.ContractRecord{Provider: "Acme"})
	router := newRouter(env, 60)

	req := httptest.NewRequest(http.MethodPost, "/contracts/"+saved.ID+"/discover", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServe_ExpiringAlerts(t *testing.T) {
	env := newTestEnv(t)
	day := func(offset int) string {
		return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
	}
	expired := seedContract(t, env, model.ContractRecord{Provider: "P1", EndDate: day(-30)})
	near := seedContract(t, env, model.ContractRecord{Provider: "P2", EndDate: day(30)})
	seedContract(t, env, model.ContractRecord{Provider: "P3", EndDate: day(400)})
	missing := seedContract(t, env, model.ContractRecord{Provider: "P4"})
	router := newRouter(env, 60)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/expiring", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var flagged []struct {
		ContractID string             `json:"contract_id"`
		Status     model.ExpiryStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &flagged))
	require.Len(t, flagged, 3)

	statuses := map[string]model.ExpiryStatus{}
	for _, f := range flagged {
		statuses[f.ContractID] = f.Status
	}
	assert.Equal(t, model.ExpiryExpired, statuses[expired.ID])
	assert.Equal(t, model.ExpiryNear, statuses[near.ID])
	assert.Equal(t, model.ExpiryMissingEnd, statuses[missing.ID])
}

func TestServe_ExpiringWindowParam(t *testing.T) {
	env := newTestEnv(t)
	day := func(offset int) string {
		return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
	}
	seedContract(t, env, model.ContractRecord{Provider: "P1", EndDate: day(30)})
	router := newRouter(env, 60)

	// A 7-day window must not flag a contract ending in 30 days.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/expiring?window_days=7", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/alerts/expiring?window_days=0", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
