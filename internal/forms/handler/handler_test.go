package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"github.com/Unknown-Bytes/formerr/internal/forms/service"
	"github.com/Unknown-Bytes/formerr/internal/forms/sse"
	"github.com/Unknown-Bytes/formerr/internal/forms/testutil"
	"github.com/Unknown-Bytes/formerr/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testOwner = "owner-1"
	testOther = "other-1"
)

type handlerEnv struct {
	*testutil.TestEnv
	svc      *service.Services
	auth     *middleware.Authenticator
	h        *Handlers
	owner    string
	intruder string
}

func setupHandlerTest(t *testing.T) *handlerEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := testutil.TestConfig()
	svc := service.NewServices(db, repository.NewRepositories(db), nil, cfg, zap.NewNop())
	hub := sse.NewHub(nil)
	svc.SetNotifier(hub)

	auth := middleware.NewAuthenticator(cfg.Session, cfg.JWT, svc.Auth, nil)
	h := NewHandlers(svc, auth, hub)

	r := testutil.SetupRouter()
	h.RegisterRoutes(r, auth)

	return &handlerEnv{
		TestEnv:  &testutil.TestEnv{DB: db, Router: r, T: t},
		svc:      svc,
		auth:     auth,
		h:        h,
		owner:    testutil.GenerateTestToken(testOwner, "owner@example.com"),
		intruder: testutil.GenerateTestToken(testOther, "other@example.com"),
	}
}

func surveyBody(status string) map[string]interface{} {
	body := map[string]interface{}{
		"title":       "Customer survey",
		"description": "Tell us about you",
		"sections": []map[string]interface{}{
			{"title": "About you", "order": 0},
		},
		"questions": []map[string]interface{}{
			{"sectionOrder": 0, "label": "Name", "type": "short-text", "required": true, "order": 0},
			{"sectionOrder": 0, "label": "Colour", "type": "multiple-choice-single", "order": 1,
				"options": []map[string]interface{}{{"label": "Red"}, {"label": "Blue"}}},
		},
	}
	if status != "" {
		body["settings"] = map[string]interface{}{"status": status}
	}
	return body
}

// createForm 通过 API 创建表单并返回 data
func (e *handlerEnv) createForm(status string) map[string]interface{} {
	e.T.Helper()
	w := testutil.DoRequest(e.Router, "POST", "/forms", surveyBody(status), e.owner)
	if w.Code != http.StatusCreated {
		e.T.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return testutil.ParseResponse(w)["data"].(map[string]interface{})
}

func questionIDs(form map[string]interface{}) []string {
	var ids []string
	for _, s := range form["sections"].([]interface{}) {
		for _, q := range s.(map[string]interface{})["questions"].([]interface{}) {
			ids = append(ids, q.(map[string]interface{})["id"].(string))
		}
	}
	return ids
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, code int) string {
	t.Helper()
	if w.Code != code {
		t.Fatalf("Expected %d, got %d: %s", code, w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	msg, ok := resp["error"].(string)
	if !ok || msg == "" {
		t.Fatalf("Expected {error: string}, got %s", w.Body.String())
	}
	return msg
}

func TestCreateForm(t *testing.T) {
	env := setupHandlerTest(t)

	form := env.createForm("")
	if form["status"] != entity.FormStatusDraft {
		t.Errorf("Expected draft, got %v", form["status"])
	}
	if form["publishedAt"] != nil {
		t.Errorf("Expected no publishedAt, got %v", form["publishedAt"])
	}
	if _, leaked := form["formPassword"]; leaked {
		t.Error("form password must never be serialized")
	}
	if n := len(questionIDs(form)); n != 2 {
		t.Errorf("Expected 2 questions, got %d", n)
	}
}

func TestCreateForm_Errors(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.Router, "POST", "/forms", surveyBody(""), "")
	if msg := expectError(t, w, http.StatusUnauthorized); msg != "Unauthorized" {
		t.Errorf("Expected Unauthorized, got %q", msg)
	}

	w = testutil.DoRequest(env.Router, "POST", "/forms", map[string]interface{}{"description": "no title"}, env.owner)
	expectError(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(env.Router, "POST", "/forms", "{not json", env.owner)
	expectError(t, w, http.StatusBadRequest)

	body := surveyBody("")
	body["questions"] = []map[string]interface{}{
		{"sectionOrder": 3, "label": "Lost", "type": "short-text"},
	}
	w = testutil.DoRequest(env.Router, "POST", "/forms", body, env.owner)
	expectError(t, w, http.StatusBadRequest)

	var count int64
	env.DB.Model(&entity.Form{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no forms after failed creates, got %d", count)
	}
}

func TestListAndGetForms(t *testing.T) {
	env := setupHandlerTest(t)
	form := env.createForm("")
	id := form["id"].(string)

	w := testutil.DoRequest(env.Router, "GET", "/forms", nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if data := testutil.ParseResponse(w)["data"].([]interface{}); len(data) != 1 {
		t.Errorf("Expected 1 form, got %d", len(data))
	}

	w = testutil.DoRequest(env.Router, "GET", "/forms", nil, env.intruder)
	if data := testutil.ParseResponse(w)["data"].([]interface{}); len(data) != 0 {
		t.Errorf("Expected no forms for another user, got %d", len(data))
	}

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id, nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id, nil, env.intruder)
	expectError(t, w, http.StatusNotFound)
}

func TestUpdateStatus(t *testing.T) {
	env := setupHandlerTest(t)
	id := env.createForm("")["id"].(string)

	w := testutil.DoRequest(env.Router, "PATCH", "/forms/"+id+"/status", map[string]string{"status": "published"}, env.owner)
	expectError(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(env.Router, "PATCH", "/forms/"+id+"/status", map[string]string{"status": "active"}, env.intruder)
	expectError(t, w, http.StatusNotFound)

	w = testutil.DoRequest(env.Router, "PATCH", "/forms/"+id+"/status", map[string]string{"status": "active"}, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["status"] != "active" || data["publishedAt"] == nil {
		t.Errorf("Expected active with publishedAt, got %v / %v", data["status"], data["publishedAt"])
	}
}

func TestUpdateSettings(t *testing.T) {
	env := setupHandlerTest(t)
	id := env.createForm("")["id"].(string)

	w := testutil.DoRequest(env.Router, "PATCH", "/forms/"+id+"/settings", map[string]interface{}{"ownerId": testOther}, env.owner)
	expectError(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(env.Router, "PATCH", "/forms/"+id+"/settings", map[string]interface{}{"thankYouMessage": "Valeu!"}, env.intruder)
	expectError(t, w, http.StatusNotFound)

	w = testutil.DoRequest(env.Router, "PATCH", "/forms/"+id+"/settings", map[string]interface{}{
		"thankYouMessage": "Valeu!",
		"webhookUrl":      "https://hooks.example.com/x",
	}, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["thankYouMessage"] != "Valeu!" || data["webhookUrl"] != "https://hooks.example.com/x" {
		t.Errorf("Settings not applied: %v", data)
	}
}

func TestUpdateDetailsAndDelete(t *testing.T) {
	env := setupHandlerTest(t)
	id := env.createForm("")["id"].(string)

	w := testutil.DoRequest(env.Router, "PATCH", "/forms/"+id, map[string]interface{}{"title": "Renamed"}, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "DELETE", "/forms/"+id, nil, env.intruder)
	expectError(t, w, http.StatusNotFound)

	w = testutil.DoRequest(env.Router, "DELETE", "/forms/"+id, nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id, nil, env.owner)
	expectError(t, w, http.StatusNotFound)
}

func TestSubmitAndExport(t *testing.T) {
	env := setupHandlerTest(t)
	form := env.createForm("active")
	id := form["id"].(string)
	qs := questionIDs(form)

	w := testutil.DoRequest(env.Router, "GET", "/f/"+id, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", "/f/"+id+"/responses", map[string]interface{}{
		"answers": []map[string]interface{}{{"questionId": qs[0], "value": "Alice"}},
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	responseID := testutil.ParseResponse(w)["data"].(map[string]interface{})["responseId"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/f/"+id+"/responses", map[string]interface{}{"answers": []interface{}{}}, "")
	expectError(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/export?format=csv", nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="customer_survey-respostas.csv"` {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	lines := strings.Split(w.Body.String(), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], fmt.Sprintf(`"%s","`, responseID)) || !strings.HasSuffix(lines[1], `,"Alice",""`) {
		t.Errorf("Unexpected CSV body:\n%s", w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/export", nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	doc := testutil.ParseResponse(w)
	if doc["form"].(map[string]interface{})["id"] != id || len(doc["responses"].([]interface{})) != 1 {
		t.Errorf("Unexpected JSON export: %s", w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/export?format=pdf", nil, env.owner)
	expectError(t, w, http.StatusBadRequest)
	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/export", nil, env.intruder)
	expectError(t, w, http.StatusNotFound)
	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/export", nil, "")
	expectError(t, w, http.StatusUnauthorized)

	w = testutil.DoRequest(env.Router, "POST", "/forms/"+id+"/export/archive", nil, env.owner)
	expectError(t, w, http.StatusServiceUnavailable)
}

func TestSubmit_PrivateForm(t *testing.T) {
	env := setupHandlerTest(t)
	body := surveyBody("active")
	body["settings"] = map[string]interface{}{
		"status": "active", "isPrivate": true, "allowedEmails": []string{"friend@example.com"},
	}
	w := testutil.DoRequest(env.Router, "POST", "/forms", body, env.owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	form := testutil.ParseResponse(w)["data"].(map[string]interface{})
	id := form["id"].(string)
	answers := map[string]interface{}{
		"answers": []map[string]interface{}{{"questionId": questionIDs(form)[0], "value": "Me"}},
	}

	w = testutil.DoRequest(env.Router, "POST", "/f/"+id+"/responses", answers, "")
	expectError(t, w, http.StatusUnauthorized)

	w = testutil.DoRequest(env.Router, "POST", "/f/"+id+"/responses", answers, env.intruder)
	expectError(t, w, http.StatusForbidden)

	friend := testutil.GenerateTestToken("friend-1", "friend@example.com")
	w = testutil.DoRequest(env.Router, "POST", "/f/"+id+"/responses", answers, friend)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAnalyticsRoutes(t *testing.T) {
	env := setupHandlerTest(t)
	id := env.createForm("active")["id"].(string)

	w := testutil.DoRequest(env.Router, "POST", "/forms/"+id+"/analytics/share", map[string]string{"platform": "linkedin"}, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["success"] != true {
		t.Errorf("Expected {success:true}, got %s", w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", "/forms/"+id+"/analytics/share", map[string]string{"platform": "linkedin"}, env.intruder)
	expectError(t, w, http.StatusNotFound)
	w = testutil.DoRequest(env.Router, "POST", "/forms/"+id+"/analytics/share", map[string]string{}, env.owner)
	expectError(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/stats", nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", "/forms/"+id+"/shares", nil, env.owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	token := testutil.ParseResponse(w)["data"].(map[string]interface{})["shareToken"].(string)

	w = testutil.DoRequest(env.Router, "GET", "/s/"+token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["data"].(map[string]interface{})["formId"] != id {
		t.Errorf("Share resolved to wrong form: %s", w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+id+"/shares", nil, env.owner)
	if data := testutil.ParseResponse(w)["data"].([]interface{}); len(data) != 1 {
		t.Errorf("Expected 1 share, got %d", len(data))
	}
}

func TestDraftRoutes(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.Router, "POST", "/drafts", map[string]string{"title": "Builder"}, env.owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	draftID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)
	base := "/drafts/" + draftID

	w = testutil.DoRequest(env.Router, "POST", base+"/sections", map[string]string{"title": "One"}, env.owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	sectionID, _ := resp["id"].(string)
	if sectionID == "" {
		t.Fatalf("Expected new section id, got %s", w.Body.String())
	}
	sections := resp["data"].(map[string]interface{})["sections"].([]interface{})
	if sections[len(sections)-1].(map[string]interface{})["id"] != sectionID {
		t.Errorf("Returned id %q is not the appended section", sectionID)
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/questions", map[string]interface{}{
		"sectionId": sectionID, "title": "Pick", "type": "dropdown", "options": []string{"a", "b"},
	}, env.owner)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	questionID, _ := resp["id"].(string)
	if questionID == "" {
		t.Fatalf("Expected new question id, got %s", w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "PATCH", base+"/questions/"+questionID, map[string]interface{}{"title": "Pick one"}, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 updating the returned question id, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/questions", map[string]interface{}{
		"sectionId": "nope", "title": "Lost", "type": "short-text",
	}, env.owner)
	expectError(t, w, http.StatusNotFound)

	w = testutil.DoRequest(env.Router, "GET", base, nil, env.intruder)
	expectError(t, w, http.StatusNotFound)

	w = testutil.DoRequest(env.Router, "POST", base+"/flush", nil, env.intruder)
	if w.Code != http.StatusNotFound || testutil.ParseResponse(w)["success"] != false {
		t.Fatalf("Expected 404 {success:false}, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/flush", nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp = testutil.ParseResponse(w)
	if resp["success"] != true || resp["formId"] == "" {
		t.Fatalf("Unexpected flush result: %s", w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/forms/"+resp["formId"].(string), nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPersistenceFailureIsGeneric(t *testing.T) {
	env := setupHandlerTest(t)
	sqlDB, _ := env.DB.DB()
	sqlDB.Close()

	w := testutil.DoRequest(env.Router, "GET", "/forms", nil, env.owner)
	if msg := expectError(t, w, http.StatusInternalServerError); msg != "Internal server error" {
		t.Errorf("Expected generic message, got %q", msg)
	}
}

func TestSessionLoginAndLogout(t *testing.T) {
	env := setupHandlerTest(t)
	env.Router.POST("/test/login", func(c *gin.Context) {
		user, err := env.h.Auth.CompleteLogin(c, service.GithubProfile{GithubID: "7", Email: "dev@example.com", Username: "dev"})
		if err != nil {
			respondError(c, err)
			return
		}
		Success(c, user)
	})

	w := testutil.DoRequest(env.Router, "POST", "/test/login", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("Expected a session cookie")
	}

	withCookies := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		env.Router.ServeHTTP(rec, req)
		return rec
	}

	w = withCookies("GET", "/auth/me")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["data"].(map[string]interface{})["email"] != "dev@example.com" {
		t.Errorf("Unexpected user: %s", w.Body.String())
	}

	w = withCookies("POST", "/auth/logout")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 旧 cookie 对应的会话已删除
	w = withCookies("GET", "/auth/me")
	expectError(t, w, http.StatusUnauthorized)
}

func TestIssueToken(t *testing.T) {
	env := setupHandlerTest(t)

	w := testutil.DoRequest(env.Router, "POST", "/auth/token", nil, "")
	expectError(t, w, http.StatusUnauthorized)

	w = testutil.DoRequest(env.Router, "POST", "/auth/token", nil, env.owner)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	token, _ := data["token"].(string)
	if token == "" || data["expiresAt"] == nil {
		t.Fatalf("Unexpected token payload: %s", w.Body.String())
	}

	env.createForm("")
	w = testutil.DoRequest(env.Router, "GET", "/forms", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with issued token, got %d: %s", w.Code, w.Body.String())
	}
	if data := testutil.ParseResponse(w)["data"].([]interface{}); len(data) != 1 {
		t.Errorf("Issued token should act as the owner, got %d forms", len(data))
	}
}

func TestLogoutAllSessions(t *testing.T) {
	env := setupHandlerTest(t)
	env.Router.POST("/test/login", func(c *gin.Context) {
		if _, err := env.h.Auth.CompleteLogin(c, service.GithubProfile{GithubID: "9", Email: "multi@example.com", Username: "multi"}); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	login := func() []*http.Cookie {
		w := testutil.DoRequest(env.Router, "POST", "/test/login", nil, "")
		if w.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
		}
		return w.Result().Cookies()
	}
	do := func(cookies []*http.Cookie, method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		env.Router.ServeHTTP(rec, req)
		return rec
	}

	laptop, phone := login(), login()
	if w := do(phone, "GET", "/auth/me"); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if w := do(laptop, "POST", "/auth/logout-all"); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	expectError(t, do(phone, "GET", "/auth/me"), http.StatusUnauthorized)
	expectError(t, do(laptop, "GET", "/auth/me"), http.StatusUnauthorized)
}
