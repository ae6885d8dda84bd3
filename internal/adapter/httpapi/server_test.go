package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
	"query-assistant/internal/usecase/conversation"
	"query-assistant/internal/usecase/gateway"
)

const secret = "s3cret"

type fakeQueries struct {
	last   entity.Query
	answer string
	err    error
}

func (f *fakeQueries) Handle(_ context.Context, q entity.Query) (*entity.Answer, error) {
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Answer{Text: f.answer}, nil
}

type fakeLoader struct {
	collections []entity.Collection
	err         error
}

func (f *fakeLoader) Setup(_ context.Context, c entity.Collection) (*entity.IngestReport, error) {
	f.collections = append(f.collections, c)
	if f.err != nil {
		return nil, f.err
	}
	return &entity.IngestReport{Collection: c, Files: 2, Chunks: 9}, nil
}

func (f *fakeLoader) SetupAll(ctx context.Context) ([]entity.IngestReport, error) {
	var reports []entity.IngestReport
	for _, c := range entity.Collections() {
		report, err := f.Setup(ctx, c)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

func newTestServer(q *fakeQueries, l *fakeLoader) http.Handler {
	return NewServer(Config{
		SecretToken: secret,
		CORSOrigins: []string{"http://localhost:3000"},
	}, q, l, output.NopLogger{}).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func authed() map[string]string {
	return map[string]string{SecretHeader: secret, "Content-Type": "application/json"}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeQueries{}, &fakeLoader{}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestQuery_Authentication(t *testing.T) {
	h := newTestServer(&fakeQueries{answer: "hi"}, &fakeLoader{})
	body := `{"thread_id":1,"user_input":"test","lang":"en"}`

	rec := do(t, h, http.MethodPost, "/query/", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/query/", body, map[string]string{SecretHeader: "wrongtoken"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/query/", body, authed())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestQuery_EmptySecretRejectsEverything(t *testing.T) {
	h := NewServer(Config{}, &fakeQueries{}, &fakeLoader{}, output.NopLogger{}).Handler()
	rec := do(t, h, http.MethodPost, "/query/", `{}`, map[string]string{SecretHeader: ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQuery_Cardano(t *testing.T) {
	q := &fakeQueries{answer: "Cardano is a proof-of-stake blockchain."}
	h := newTestServer(q, &fakeLoader{})

	rec := do(t, h, http.MethodPost, "/query/", `{"thread_id":7,"user_input":"What is Cardano?","lang":"en"}`, authed())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Cardano is a proof-of-stake blockchain.", decode[queryResponse](t, rec).Response)
	assert.Equal(t, entity.Query{ThreadID: "7", Input: "What is Cardano?", Lang: "en"}, q.last)
}

func TestQuery_StringThreadIDWithoutTrailingSlash(t *testing.T) {
	q := &fakeQueries{answer: "ok"}
	h := newTestServer(q, &fakeLoader{})

	rec := do(t, h, http.MethodPost, "/query", `{"thread_id":" session-9 ","user_input":"hi"}`, authed())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, entity.ThreadID("session-9"), q.last.ThreadID)
}

func TestLegalQuery(t *testing.T) {
	q := &fakeQueries{answer: "A contract needs offer and acceptance."}
	h := newTestServer(q, &fakeLoader{})

	rec := do(t, h, http.MethodPost, "/legalquery/",
		`{"thread_id":3,"user_input":"What makes a contract valid?","domain":"civil_law","lang":"en"}`, authed())
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, q.last.Domain)
	assert.Equal(t, entity.DomainCivilLaw, *q.last.Domain)
	assert.Equal(t, entity.AgentTypeLegal, q.last.Agent())
}

func TestQuery_ValidationErrors(t *testing.T) {
	h := newTestServer(&fakeQueries{}, &fakeLoader{})

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "not json", path: "/query/", body: `thread_id=1`},
		{name: "missing thread", path: "/query/", body: `{"user_input":"hi"}`},
		{name: "fractional thread", path: "/query/", body: `{"thread_id":1.5,"user_input":"hi"}`},
		{name: "boolean thread", path: "/query/", body: `{"thread_id":true,"user_input":"hi"}`},
		{name: "blank input", path: "/query/", body: `{"thread_id":1,"user_input":"  "}`},
		{name: "domain on cardano route", path: "/query/", body: `{"thread_id":1,"user_input":"hi","domain":"civil_law"}`},
		{name: "missing domain", path: "/legalquery/", body: `{"thread_id":1,"user_input":"hi"}`},
		{name: "unknown domain", path: "/legalquery/", body: `{"thread_id":1,"user_input":"hi","domain":"tax_law"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body, authed())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Detail)
		})
	}
}

func TestQuery_HandlerErrors(t *testing.T) {
	q := &fakeQueries{err: fmt.Errorf("%w: agent legal is not available", gateway.ErrInvalidQuery)}
	h := newTestServer(q, &fakeLoader{})
	rec := do(t, h, http.MethodPost, "/query/", `{"thread_id":1,"user_input":"hi"}`, authed())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	q.err = fmt.Errorf("%w: disk full", conversation.ErrStore)
	rec = do(t, h, http.MethodPost, "/query/", `{"thread_id":1,"user_input":"hi"}`, authed())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[errorResponse](t, rec).Detail)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(&fakeQueries{}, &fakeLoader{})

	rec := do(t, h, http.MethodOptions, "/query/", "", map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type, Secret-token",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTrainingRoutes(t *testing.T) {
	loader := &fakeLoader{}
	h := newTestServer(&fakeQueries{}, loader)

	paths := map[string]entity.Collection{
		"/training/setup_cardano_vector_db":       entity.CollectionCardano,
		"/training/setup_cardano_faq_vector_db":   entity.CollectionCardanoFAQ,
		"/training/setup_civil_law_vector_db":     entity.CollectionCivilLaw,
		"/training/setup_corporate_law_vector_db": entity.CollectionCorporateLaw,
		"/training/setup_property_law_vector_db":  entity.CollectionPropertyLaw,
	}
	for path, collection := range paths {
		rec := do(t, h, http.MethodGet, path, "", authed())
		require.Equal(t, http.StatusOK, rec.Code, path)
		resp := decode[setupResponse](t, rec)
		assert.Equal(t, string(collection), resp.Collection)
		assert.Equal(t, 9, resp.Chunks)
	}
	assert.Len(t, loader.collections, len(paths))

	rec := do(t, h, http.MethodGet, "/training/setup_civil_law_vector_db", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/training/setup_tax_law_vector_db", "", authed())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainingFailure(t *testing.T) {
	h := newTestServer(&fakeQueries{}, &fakeLoader{err: errors.New("chroma down")})
	rec := do(t, h, http.MethodGet, "/training/setup_cardano_vector_db", "", authed())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Detail, "chroma down")
}

func TestTrainingSetupAll(t *testing.T) {
	loader := &fakeLoader{}
	h := newTestServer(&fakeQueries{}, loader)

	rec := do(t, h, http.MethodGet, "/training/setup_all_vector_dbs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, loader.collections)

	rec = do(t, h, http.MethodGet, "/training/setup_all_vector_dbs", "", authed())
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[setupAllResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Collections, len(entity.Collections()))
	for i, c := range entity.Collections() {
		assert.Equal(t, string(c), resp.Collections[i].Collection)
	}
	assert.Equal(t, entity.Collections(), loader.collections)

	h = newTestServer(&fakeQueries{}, &fakeLoader{err: errors.New("chroma down")})
	rec = do(t, h, http.MethodGet, "/training/setup_all_vector_dbs", "", authed())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Detail, "chroma down")
}
