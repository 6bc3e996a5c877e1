package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"classgate/internal/codes"
	"classgate/internal/config"
	"classgate/internal/domain"
)

// nullStore accepts every batch; the handlers only need the registry's
// in-memory behavior.
type nullStore struct{}

func (n *nullStore) LoadCodes(ctx context.Context) ([]*domain.AccessCode, error) { return nil, nil }
func (n *nullStore) InsertCodes(ctx context.Context, items []*domain.AccessCode) error {
	return nil
}
func (n *nullStore) RenameCodes(ctx context.Context, names map[string]string) error { return nil }
func (n *nullStore) SetCodeStatus(ctx context.Context, code string, status domain.CodeStatus) error {
	return nil
}
func (n *nullStore) DeleteCodes(ctx context.Context, codeList []string) error { return nil }
func (n *nullStore) ImportCodes(ctx context.Context, inserts []*domain.AccessCode, renames map[string]string) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *codes.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := codes.NewRegistry(&nullStore{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret", AdminKey: "letmein"}
	return SetupRouter(cfg, registry), registry
}

func doJSON(r *gin.Engine, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine) []*http.Cookie {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/admin/login", gin.H{"key": "letmein"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func TestValidateEndpoint(t *testing.T) {
	r, registry := newTestRouter(t)
	ctx := context.Background()

	item, err := registry.GenerateOne(ctx, "Alice")
	if err != nil {
		t.Fatalf("GenerateOne: %v", err)
	}

	w := doJSON(r, http.MethodPost, "/api/validate", gin.H{"code": strings.ToLower(item.Code)}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("valid code status = %d", w.Code)
	}
	var resp struct {
		Valid  bool `json:"valid"`
		Record struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"record"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Valid || resp.Record.Code != item.Code || resp.Record.Name != "Alice" {
		t.Errorf("response = %+v", resp)
	}

	w = doJSON(r, http.MethodPost, "/api/validate", gin.H{"code": "NOPE2345"}, nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "not_found") {
		t.Errorf("unknown code: %d %s", w.Code, w.Body.String())
	}

	_ = registry.SetStatus(ctx, item.Code, domain.CodeRevoked)
	w = doJSON(r, http.MethodPost, "/api/validate", gin.H{"code": item.Code}, nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "revoked") {
		t.Errorf("revoked code: %d %s", w.Code, w.Body.String())
	}
}

func TestAdminRequiresLogin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/admin/codes", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list status = %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/admin/login", gin.H{"key": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad key login status = %d", w.Code)
	}
}

func TestGenerateAndListFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	cookies := login(t, r)

	w := doJSON(r, http.MethodPost, "/api/admin/codes", gin.H{"name": "Alice"}, cookies)
	if w.Code != http.StatusCreated {
		t.Fatalf("generate status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/api/admin/codes/bulk", gin.H{"count": 3, "names": []string{"X"}}, cookies)
	if w.Code != http.StatusCreated {
		t.Fatalf("bulk status = %d: %s", w.Code, w.Body.String())
	}
	var bulk struct {
		Codes []domain.AccessCode `json:"codes"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &bulk)
	if len(bulk.Codes) != 3 || bulk.Codes[0].Name != "X1" {
		t.Errorf("bulk response = %+v", bulk.Codes)
	}

	w = doJSON(r, http.MethodGet, "/api/admin/codes", nil, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Codes []domain.AccessCode `json:"codes"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Codes) != 4 {
		t.Errorf("listed %d codes, want 4", len(list.Codes))
	}
}

func TestGenerateRejectsOverlongName(t *testing.T) {
	r, _ := newTestRouter(t)
	cookies := login(t, r)

	long := strings.Repeat("x", domain.MaxNameLen+1)
	w := doJSON(r, http.MethodPost, "/api/admin/codes", gin.H{"name": long}, cookies)
	if w.Code != http.StatusBadRequest {
		t.Errorf("overlong name status = %d, want 400", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/admin/codes/bulk", gin.H{"count": 2, "names": []string{long, long}}, cookies)
	if w.Code != http.StatusBadRequest {
		t.Errorf("overlong bulk names status = %d, want 400", w.Code)
	}
}

func TestImportExportEndpoints(t *testing.T) {
	r, registry := newTestRouter(t)
	cookies := login(t, r)

	body := "code,name\nabcd2345,\"Last, First\""
	req := httptest.NewRequest(http.MethodPost, "/api/admin/codes/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", w.Code, w.Body.String())
	}
	if got := registry.Find("ABCD2345"); got == nil || got.Name != "Last, First" {
		t.Errorf("imported code = %+v", got)
	}

	w = doJSON(r, http.MethodGet, "/api/admin/codes/export", nil, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "code,name") {
		t.Errorf("export body = %q", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"Last, First"`) {
		t.Errorf("export missing quoted name: %q", w.Body.String())
	}
}

func TestStatusAndRemoveEndpoints(t *testing.T) {
	r, registry := newTestRouter(t)
	cookies := login(t, r)

	item, _ := registry.GenerateOne(context.Background(), "")

	w := doJSON(r, http.MethodPatch, "/api/admin/codes/status", gin.H{"code": item.Code, "status": "revoked"}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", w.Code)
	}
	if got := registry.Find(item.Code); got.Status != domain.CodeRevoked {
		t.Errorf("status = %s", got.Status)
	}

	w = doJSON(r, http.MethodPatch, "/api/admin/codes/status", gin.H{"code": item.Code, "status": "bogus"}, cookies)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus status accepted: %d", w.Code)
	}

	w = doJSON(r, http.MethodDelete, "/api/admin/codes", gin.H{"codes": []string{item.Code}}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if registry.Find(item.Code) != nil {
		t.Error("code still present after remove")
	}
}
