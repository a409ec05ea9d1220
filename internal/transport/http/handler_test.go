package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwrk-planet/board-service/internal/identity"
	"github.com/cwrk-planet/board-service/internal/service"
	"github.com/cwrk-planet/board-service/internal/session"
	httpmw "github.com/cwrk-planet/board-service/internal/transport/http/middleware"
)

func newTestRouter(t *testing.T, idCfg identity.Config) (http.Handler, *session.Registry) {
	t.Helper()
	reg := session.NewRegistry(session.Options{})
	t.Cleanup(reg.Close)

	svc := service.NewRoomService(reg)
	h := NewHandler(svc, identity.NewResolver(idCfg), "")
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	return NewRouter(h, ws, RouterConfig{}), reg
}

func do(t *testing.T, h http.Handler, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCreateAndGetRoom(t *testing.T) {
	router, reg := newTestRouter(t, identity.Config{})

	rec := do(t, router, http.MethodPost, "/api/rooms/create", `{"name":"Sketch","isPrivate":false,"userId":"u1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body)
	}
	created := decodeBody[RoomResponse](t, rec)
	if !created.Success || created.Room.Name != "Sketch" || len(created.Room.ID) != 8 {
		t.Fatalf("unexpected create response %+v", created)
	}
	if rec.Header().Get(httpmw.HeaderRequestID) == "" {
		t.Fatal("request id header missing")
	}

	sess, _ := reg.Get(created.Room.ID)
	if sess.CreatedBy() != "u1" {
		t.Fatalf("creator = %q", sess.CreatedBy())
	}
	if _, err := sess.Join("u1", "Ann", "c1"); err != nil {
		t.Fatal(err)
	}

	rec = do(t, router, http.MethodGet, "/api/rooms/"+created.Room.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	got := decodeBody[RoomResponse](t, rec)
	if got.Room.ParticipantCount != 1 || len(got.Room.Participants) != 1 || !got.Room.Participants[0].IsAdmin {
		t.Fatalf("unexpected room %+v", got.Room)
	}

	rec = do(t, router, http.MethodGet, "/api/rooms/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing room status %d", rec.Code)
	}
	if e := decodeBody[ErrorResponse](t, rec); e.Success || e.Message != "Room not found" {
		t.Fatalf("unexpected error body %+v", e)
	}
}

func TestCreateRoomWithoutBody(t *testing.T) {
	router, reg := newTestRouter(t, identity.Config{})

	rec := do(t, router, http.MethodPost, "/api/rooms/create", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	room := decodeBody[RoomResponse](t, rec).Room
	if room.Name == "" {
		t.Fatal("name should be generated")
	}
	sess, _ := reg.Get(room.ID)
	if sess.CreatedBy() != "anonymous" {
		t.Fatalf("creator = %q", sess.CreatedBy())
	}

	rec = do(t, router, http.MethodPost, "/api/rooms/create", "{broken")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("broken json status %d", rec.Code)
	}
}

func TestCreateRoomCreatorFromCookie(t *testing.T) {
	router, reg := newTestRouter(t, identity.Config{})

	rec := do(t, router, http.MethodPost, "/api/rooms/create", `{"name":"x"}`, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "userId", Value: "cookie-user"})
	})
	room := decodeBody[RoomResponse](t, rec).Room
	sess, _ := reg.Get(room.ID)
	if sess.CreatedBy() != "cookie-user" {
		t.Fatalf("creator = %q", sess.CreatedBy())
	}
}

func TestPublicListingAndVisibility(t *testing.T) {
	router, reg := newTestRouter(t, identity.Config{})
	reg.Create("pub1", "Open", false, "u1")
	reg.Create("priv", "Closed", true, "u1")

	rec := do(t, router, http.MethodGet, "/api/rooms/public", "")
	list := decodeBody[RoomsListResponse](t, rec)
	if list.Count != 1 || list.Rooms[0].ID != "pub1" {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = do(t, router, http.MethodPut, "/api/rooms/pub1/visibility", "")
	resp := decodeBody[RoomResponse](t, rec)
	if rec.Code != http.StatusOK || !resp.Room.IsPrivate || resp.Message != "Room is now private" {
		t.Fatalf("unexpected toggle response %d %+v", rec.Code, resp)
	}

	rec = do(t, router, http.MethodGet, "/api/rooms/public", "")
	if list := decodeBody[RoomsListResponse](t, rec); list.Count != 0 || list.Rooms == nil {
		t.Fatalf("expected empty non-null list, got %+v", list)
	}
}

func TestRenameRoom(t *testing.T) {
	router, reg := newTestRouter(t, identity.Config{})
	reg.Create("r1", "Old", false, "u1")

	rec := do(t, router, http.MethodPut, "/api/rooms/r1/name", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty name status %d", rec.Code)
	}

	rec = do(t, router, http.MethodPut, "/api/rooms/r1/name", `{"name":"New"}`)
	if got := decodeBody[RoomResponse](t, rec); rec.Code != http.StatusOK || got.Room.Name != "New" {
		t.Fatalf("rename failed %d %+v", rec.Code, got)
	}

	rec = do(t, router, http.MethodPut, "/api/rooms/none/name", `{"name":"New"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing room status %d", rec.Code)
	}
}

func TestDeleteAndAccess(t *testing.T) {
	router, reg := newTestRouter(t, identity.Config{})
	reg.Create("r1", "Board", true, "u1")

	rec := do(t, router, http.MethodGet, "/api/rooms/r1/access", "")
	access := decodeBody[AccessResponse](t, rec)
	if rec.Code != http.StatusOK || access.Room.ID != "r1" || !access.Room.IsPrivate || access.Room.ParticipantCount != 0 {
		t.Fatalf("unexpected access %d %+v", rec.Code, access)
	}

	rec = do(t, router, http.MethodDelete, "/api/rooms/r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if _, ok := reg.Get("r1"); ok {
		t.Fatal("room still present")
	}

	rec = do(t, router, http.MethodDelete, "/api/rooms/r1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, "/api/rooms/r1/access", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("access after delete status %d", rec.Code)
	}
}

func TestUserIDCookie(t *testing.T) {
	router, _ := newTestRouter(t, identity.Config{})

	rec := do(t, router, http.MethodGet, "/api/user/id", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d", rec.Code)
	}
	issued := decodeBody[UserIDResponse](t, rec)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "userId" || cookies[0].Value != issued.UserID || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies %+v", cookies)
	}

	rec = do(t, router, http.MethodGet, "/api/user/id", "", func(r *http.Request) { r.AddCookie(cookies[0]) })
	if rec.Code != http.StatusOK || decodeBody[UserIDResponse](t, rec).UserID != issued.UserID {
		t.Fatalf("existing id should be echoed, got %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndWSRoutes(t *testing.T) {
	router, _ := newTestRouter(t, identity.Config{})

	if rec := do(t, router, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
	for _, path := range []string{"/ws", "/socket"} {
		if rec := do(t, router, http.MethodGet, path, ""); rec.Code != http.StatusTeapot {
			t.Fatalf("%s not routed to the websocket handler: %d", path, rec.Code)
		}
	}
}

func TestCreateRoomRejectsBadToken(t *testing.T) {
	router, _ := newTestRouter(t, identity.Config{Secret: "s3cret"})

	rec := do(t, router, http.MethodPost, "/api/rooms/create", `{}`, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-jwt")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}
