package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmehdipour/agency-crm/internal/auth"
	"github.com/jmehdipour/agency-crm/internal/config"
	apihttp "github.com/jmehdipour/agency-crm/internal/http"
	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/repository"
	"github.com/jmehdipour/agency-crm/internal/testutil"
	"github.com/jmehdipour/agency-crm/internal/util"
	"github.com/jmoiron/sqlx"
)

type harness struct {
	t     *testing.T
	srv   *apihttp.Server
	db    *sqlx.DB
	token string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Config{
		HTTP: config.HTTPConfig{RequestTimeout: 5 * time.Second},
		Kafka: config.KafkaConfig{
			AgenciesTopic: "crm.agencies",
			ClientsTopic:  "crm.clients",
		},
		Auth: config.AuthConfig{
			JWTSecret: "test-secret",
			Issuer:    "agency-crm",
			Leeway:    time.Second,
			TokenTTL:  time.Hour,
		},
	}

	db := testutil.NewDB(t)
	srv, err := apihttp.NewServer(cfg, db, nil, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	v, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	tok, err := v.Sign("tester", 0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	return &harness{t: t, srv: srv, db: db, token: tok}
}

func (h *harness) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, want, rec.Body.String())
	}
}

type createResp struct {
	Agency model.Agency `json:"agency"`
	Client model.Client `json:"client"`
}

func agencyBody(name, clientName string, bill float64) map[string]any {
	return map[string]any{
		"name":              name,
		"address1":          "1 Main St",
		"address2":          "Suite 9",
		"state":             "CA",
		"city":              "Oakland",
		"phoneNumber":       "555-0100",
		"clientName":        clientName,
		"email":             clientName + "@example.com",
		"clientPhoneNumber": "555-0199",
		"totalBill":         bill,
	}
}

func clientBody(name string, bill any) map[string]any {
	return map[string]any{
		"name":        name,
		"email":       name + "@example.com",
		"phoneNumber": "555-0123",
		"totalBill":   bill,
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", nil, false)
	expectStatus(t, rec, http.StatusOK)
}

func TestAuth_BootstrapOnlyForFirstAgency(t *testing.T) {
	h := newHarness(t)

	expectStatus(t, h.do(http.MethodGet, "/api/agencies", nil, false), http.StatusUnauthorized)

	rec := h.do(http.MethodPost, "/api/agencies", agencyBody("Acme", "alice", 10), false)
	expectStatus(t, rec, http.StatusCreated)

	rec = h.do(http.MethodPost, "/api/agencies", agencyBody("Beta", "bob", 10), false)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = h.do(http.MethodPost, "/api/agencies", agencyBody("Beta", "bob", 10), true)
	expectStatus(t, rec, http.StatusCreated)
}

func TestAuth_RejectsBadToken(t *testing.T) {
	h := newHarness(t)
	h.token = "garbage"
	expectStatus(t, h.do(http.MethodGet, "/api/clients", nil, true), http.StatusUnauthorized)
}

func TestAgencies_CRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/agencies", agencyBody("Acme", "alice", 120.5), true)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[createResp](t, rec)
	if created.Agency.ID == "" || created.Client.AgencyID != created.Agency.ID {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if created.Agency.PhoneNumber != "5550100" {
		t.Fatalf("phone not normalized: %q", created.Agency.PhoneNumber)
	}

	rec = h.do(http.MethodGet, "/api/agencies/"+created.Agency.ID, nil, true)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Agency](t, rec); got.Name != "Acme" || got.Address2 != "Suite 9" {
		t.Fatalf("unexpected agency: %+v", got)
	}

	update := map[string]any{
		"name":        "Acme Two",
		"address1":    "2 Main St",
		"state":       "CA",
		"city":        "Berkeley",
		"phoneNumber": "555-0101",
	}
	rec = h.do(http.MethodPut, "/api/agencies/"+created.Agency.ID, update, true)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Agency](t, rec); got.Address2 != "" || got.City != "Berkeley" {
		t.Fatalf("update not full-replace: %+v", got)
	}

	rec = h.do(http.MethodGet, "/api/agencies", nil, true)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]model.Agency](t, rec); len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}

	expectStatus(t, h.do(http.MethodGet, "/api/agencies/"+util.New(), nil, true), http.StatusNotFound)
	expectStatus(t, h.do(http.MethodPut, "/api/agencies/"+util.New(), update, true), http.StatusNotFound)

	delete(update, "city")
	expectStatus(t, h.do(http.MethodPut, "/api/agencies/"+created.Agency.ID, update, true), http.StatusBadRequest)
}

func TestAgencies_CreateValidation(t *testing.T) {
	h := newHarness(t)

	body := agencyBody("Acme", "alice", 1)
	body["email"] = "nope"
	expectStatus(t, h.do(http.MethodPost, "/api/agencies", body, true), http.StatusBadRequest)

	body = agencyBody("Acme", "alice", 1)
	body["totalBill"] = "lots"
	expectStatus(t, h.do(http.MethodPost, "/api/agencies", body, true), http.StatusBadRequest)

	body = agencyBody("Acme", "alice", 1)
	delete(body, "totalBill")
	expectStatus(t, h.do(http.MethodPost, "/api/agencies", body, true), http.StatusBadRequest)

	expectStatus(t, h.do(http.MethodPost, "/api/agencies", "{not json", true), http.StatusBadRequest)

	var n int
	if err := h.db.Get(&n, `SELECT COUNT(*) FROM agencies`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("agencies persisted after failed creates: %d", n)
	}
}

func TestClients_Flow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/agencies", agencyBody("Acme", "alice", 100), true)
	expectStatus(t, rec, http.StatusCreated)
	a := decode[createResp](t, rec)

	rec = h.do(http.MethodPost, "/api/agencies", agencyBody("Beta", "bob", 5), true)
	expectStatus(t, rec, http.StatusCreated)
	b := decode[createResp](t, rec)

	body := clientBody("carol", 300)
	body["agencyId"] = a.Agency.ID
	rec = h.do(http.MethodPost, "/api/clients", body, true)
	expectStatus(t, rec, http.StatusCreated)
	carol := decode[model.Client](t, rec)

	body["agencyId"] = util.New()
	expectStatus(t, h.do(http.MethodPost, "/api/clients", body, true), http.StatusNotFound)

	rec = h.do(http.MethodGet, "/api/clients", nil, true)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]model.Client](t, rec); len(list) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(list))
	}

	rec = h.do(http.MethodGet, "/api/clients/"+a.Agency.ID, nil, true)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]model.Client](t, rec); len(list) != 2 {
		t.Fatalf("len(acme) = %d, want 2", len(list))
	}

	rec = h.do(http.MethodGet, "/api/clients?agencyId="+b.Agency.ID, nil, true)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]model.Client](t, rec); len(list) != 1 {
		t.Fatalf("len(beta) = %d, want 1", len(list))
	}

	expectStatus(t, h.do(http.MethodGet, "/api/clients/"+util.New(), nil, true), http.StatusNotFound)

	// scoped access
	rec = h.do(http.MethodGet, "/api/clients/"+a.Agency.ID+"/"+carol.ID, nil, true)
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, h.do(http.MethodGet, "/api/clients/"+b.Agency.ID+"/"+carol.ID, nil, true), http.StatusConflict)
	expectStatus(t, h.do(http.MethodGet, "/api/clients/"+util.New()+"/"+carol.ID, nil, true), http.StatusNotFound)
	expectStatus(t, h.do(http.MethodGet, "/api/clients/"+a.Agency.ID+"/"+util.New(), nil, true), http.StatusNotFound)

	expectStatus(t,
		h.do(http.MethodPut, "/api/clients/"+b.Agency.ID+"/"+carol.ID, clientBody("mallory", 1), true),
		http.StatusConflict)

	rec = h.do(http.MethodPut, "/api/clients/"+a.Agency.ID+"/"+carol.ID, clientBody("carol", "450.75"), true)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Client](t, rec); got.TotalBill.String() != "450.75" || got.AgencyID != a.Agency.ID {
		t.Fatalf("unexpected scoped update: %+v", got)
	}

	// unscoped alias
	rec = h.do(http.MethodPut, "/api/agencies/clients/"+carol.ID, clientBody("caroline", 10), true)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Client](t, rec); got.Name != "caroline" || got.AgencyID != a.Agency.ID {
		t.Fatalf("unexpected update: %+v", got)
	}
	expectStatus(t,
		h.do(http.MethodPut, "/api/agencies/clients/"+util.New(), clientBody("x", 1), true),
		http.StatusNotFound)

	missing := clientBody("x", 1)
	delete(missing, "phoneNumber")
	expectStatus(t, h.do(http.MethodPut, "/api/agencies/clients/"+carol.ID, missing, true), http.StatusBadRequest)
}

func TestClients_EmptyAgencyListsNothing(t *testing.T) {
	h := newHarness(t)

	now := time.Now().UTC()
	a := model.Agency{
		ID: util.New(), Name: "Empty", Address1: "1", State: "CA", City: "LA",
		PhoneNumber: "1", CreatedAt: now, UpdatedAt: now,
	}
	if err := repository.NewAgenciesRepository(h.db).Insert(t.Context(), nil, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec := h.do(http.MethodGet, "/api/clients/"+a.ID, nil, true)
	expectStatus(t, rec, http.StatusOK)
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("body = %s, want []", body)
	}
}

func TestReports(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/agencies/top-client", nil, true)
	expectStatus(t, rec, http.StatusNotFound)

	rec = h.do(http.MethodGet, "/api/agencies/top-clients", nil, true)
	expectStatus(t, rec, http.StatusOK)
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("body = %s, want []", body)
	}

	rec = h.do(http.MethodPost, "/api/agencies", agencyBody("Acme", "a1", 100), true)
	expectStatus(t, rec, http.StatusCreated)
	a := decode[createResp](t, rec)

	body := clientBody("a2", 300)
	body["agencyId"] = a.Agency.ID
	expectStatus(t, h.do(http.MethodPost, "/api/clients", body, true), http.StatusCreated)

	expectStatus(t, h.do(http.MethodPost, "/api/agencies", agencyBody("Beta", "b1", 300), true), http.StatusCreated)

	rec = h.do(http.MethodGet, "/api/agencies/top-clients", nil, true)
	expectStatus(t, rec, http.StatusOK)
	rows := decode[[]model.AgencyTopClients](t, rec)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].AgencyName != "Acme" || len(rows[0].TopClients) != 1 || rows[0].TopClients[0].ClientName != "a2" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}

	rec = h.do(http.MethodGet, "/api/agencies/top-client", nil, true)
	expectStatus(t, rec, http.StatusOK)
	top := decode[model.GlobalTopClient](t, rec)
	if top.ClientName != "a2" || top.AgencyName != "Acme" {
		t.Fatalf("unexpected global top: %+v", top)
	}
}

func TestBillHistory_WithoutClickHouse(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/agencies/"+util.New()+"/bill-history", nil, true)
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestAuth_BootstrapClaimTakenElsewhere(t *testing.T) {
	h := newHarness(t)

	// a concurrent token-less create holds the claim but has not committed
	if _, err := repository.NewAgenciesRepository(h.db).ClaimBootstrap(t.Context(), nil, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	rec := h.do(http.MethodPost, "/api/agencies", agencyBody("Late", "bob", 10), false)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = h.do(http.MethodGet, "/api/agencies", nil, true)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]model.Agency](t, rec); len(list) != 0 {
		t.Fatalf("agencies = %d, want 0", len(list))
	}
}

func TestClients_UnscopedGet(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/agencies", agencyBody("Acme", "alice", 42), true)
	expectStatus(t, rec, http.StatusCreated)
	created := decode[createResp](t, rec)

	rec = h.do(http.MethodGet, "/api/agencies/clients/"+created.Client.ID, nil, true)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[model.Client](t, rec); got.ID != created.Client.ID || got.AgencyID != created.Agency.ID {
		t.Fatalf("unexpected client: %+v", got)
	}

	expectStatus(t, h.do(http.MethodGet, "/api/agencies/clients/"+util.New(), nil, true), http.StatusNotFound)
	expectStatus(t, h.do(http.MethodGet, "/api/agencies/clients/not-an-id", nil, true), http.StatusNotFound)
}

func TestClients_OversizedFieldsAreBadRequest(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/agencies", agencyBody("Acme", "alice", 1), true)
	expectStatus(t, rec, http.StatusCreated)
	a := decode[createResp](t, rec)

	longName := clientBody(strings.Repeat("n", 300), 5)
	longName["agencyId"] = a.Agency.ID
	expectStatus(t, h.do(http.MethodPost, "/api/clients", longName, true), http.StatusBadRequest)

	hugeBill := clientBody("bob", "100000000000000000000")
	hugeBill["agencyId"] = a.Agency.ID
	rec = h.do(http.MethodPost, "/api/clients", hugeBill, true)
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decode[map[string]string](t, rec); !strings.Contains(body["error"], "totalBill") {
		t.Fatalf("error does not name totalBill: %v", body)
	}

	longPhone := agencyBody("Beta", "bob", 1)
	longPhone["phoneNumber"] = strings.Repeat("5", 64)
	expectStatus(t, h.do(http.MethodPost, "/api/agencies", longPhone, true), http.StatusBadRequest)
}
