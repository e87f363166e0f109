package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/classes"
	"attendsync/internal/live"
	"attendsync/internal/roster"
	"attendsync/internal/selection"
	"attendsync/internal/store"
)

const (
	facultyEmail    = "rao@uni.edu"
	// newFacultyEmail is allow-listed but has not set a password.
	newFacultyEmail = "new@uni.edu"
	password        = "hunter22"
)

type harness struct {
	t      *testing.T
	router *gin.Engine
	mem    *store.Memory
	gate   *auth.Gate
	sel    *selection.Memory
	hub    *live.Memory
}

func newHarness(t *testing.T, health map[string]func(context.Context) bool) *harness {
	t.Helper()
	return buildHarness(t, health, func(m *selection.Memory) selection.Backend { return m }, zerolog.Nop())
}

// buildHarness lets a test wrap the selection backend and capture logs.
func buildHarness(t *testing.T, health map[string]func(context.Context) bool, wrap func(*selection.Memory) selection.Backend, logger zerolog.Logger) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	hub := live.NewMemory()
	sel := selection.NewMemory()
	notify := live.NewNotifier(hub, nil, zerolog.Nop())
	signer := auth.Signer{Issuer: "test", Key: []byte("secret"), AccessTTL: time.Minute, RefreshTTL: time.Hour}
	gate := auth.NewGate(mem, mem, mem, auth.NewAllowList(
		auth.Faculty{Name: "Dr. Rao", Email: facultyEmail},
		auth.Faculty{Name: "Dr. New", Email: newFacultyEmail},
	), signer, zerolog.Nop())
	require.NoError(t, gate.SetPassword(context.Background(), facultyEmail, password))

	router := NewRouter(Deps{
		Store:          mem,
		Gate:           gate,
		Registry:       classes.NewRegistry(mem, mem, notify, zerolog.Nop()),
		Rosters:        roster.NewResolver(mem),
		Recorder:       attendance.NewRecorder(mem, notify, time.UTC, zerolog.Nop()),
		Selections:     wrap(sel),
		Hub:            hub,
		Location:       time.UTC,
		MaxUploadBytes: 1024,
		Health:         health,
		Logger:         logger,
	})
	return &harness{t: t, router: router, mem: mem, gate: gate, sel: sel, hub: hub}
}

func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (h *harness) login(role, email string) sessionResponse {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/auth/"+role+"/login", gin.H{"email": email, "password": password}, "")
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decode[sessionResponse](h.t, w)
}

// registerStudent signs up a student in MCA 1st Year and returns its id.
func (h *harness) registerStudent(name, email string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/auth/student/register", gin.H{
		"name": name, "dob": "2001-01-01", "instituteID": "MCA-" + name, "contactNumber": "9999999999",
		"email": email, "password": password, "program": "MCA", "branch": "anything", "year": "1st Year",
	}, "")
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Student attendance.Student `json:"student"`
	}](h.t, w)
	return resp.Student.ID
}

func (h *harness) createClass(token, name string) attendance.Class {
	h.t.Helper()
	w := h.do(http.MethodPost, "/v1/classes", gin.H{"program": "MCA", "branch": "CS", "year": "1st Year", "className": name}, token)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[struct {
		Class attendance.Class `json:"class"`
	}](h.t, w).Class
}

func TestFacultyLogin(t *testing.T) {
	h := newHarness(t, nil)

	s := h.login("faculty", facultyEmail)
	assert.Equal(t, "Dr. Rao", s.Identity.Name)
	assert.NotEmpty(t, s.AccessToken)

	w := h.do(http.MethodPost, "/v1/auth/faculty/login", gin.H{"email": facultyEmail, "password": "wrong-one"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	require.NoError(t, h.gate.SetPassword(context.Background(), "intruder@uni.edu", password))
	w = h.do(http.MethodPost, "/v1/auth/faculty/login", gin.H{"email": "intruder@uni.edu", "password": password}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not an authorized faculty member")

	w = h.do(http.MethodPost, "/v1/auth/faculty/login", gin.H{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentRegistrationAndLogin(t *testing.T) {
	h := newHarness(t, nil)
	id := h.registerStudent("Amit", "amit@uni.edu")

	st, err := h.mem.GetStudent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, classes.SingleBranch, st.Branch)

	w := h.do(http.MethodPost, "/v1/auth/student/register", gin.H{
		"name": "Amit", "dob": "2001-01-01", "instituteID": "X", "contactNumber": "1",
		"email": "amit@uni.edu", "password": password, "program": "MCA", "year": "1st Year",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, "/v1/auth/student/register", gin.H{
		"name": "Bo", "dob": "2001-01-01", "instituteID": "X", "contactNumber": "1",
		"email": "bo@uni.edu", "password": password, "program": "B.Tech", "branch": "CSE", "year": "9th Year",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s := h.login("student", "amit@uni.edu")
	assert.Equal(t, auth.RoleStudent, s.Identity.Role)

	require.NoError(t, h.gate.SetPassword(context.Background(), "ghost@uni.edu", password))
	w = h.do(http.MethodPost, "/v1/auth/student/login", gin.H{"email": "ghost@uni.edu", "password": password}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Student record not found")

	w = h.do(http.MethodGet, "/v1/classes", nil, s.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegistrationRefusesFacultyEmail(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/v1/auth/student/register", gin.H{
		"name": "Mallory", "dob": "2001-01-01", "instituteID": "X", "contactNumber": "1",
		"email": "New@uni.edu", "password": password, "program": "MCA", "year": "1st Year",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "reserved for faculty")

	w = h.do(http.MethodPost, "/v1/auth/faculty/login", gin.H{"email": newFacultyEmail, "password": password}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err := h.mem.StudentByEmail(context.Background(), newFacultyEmail)
	assert.ErrorIs(t, err, attendance.ErrNotFound)
}

func TestRegistrationReclaimsCredentialWithoutStudent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.gate.SetPassword(ctx, "amit@uni.edu", "stale-password"))
	cred, err := h.mem.CredentialByEmail(ctx, "amit@uni.edu")
	require.NoError(t, err)

	id := h.registerStudent("Amit", "amit@uni.edu")
	assert.Equal(t, cred.UID, id)

	s := h.login("student", "amit@uni.edu")
	assert.Equal(t, id, s.Identity.UID)
}

func TestAttendanceFlow(t *testing.T) {
	h := newHarness(t, nil)
	amit := h.registerStudent("Amit", "amit@uni.edu")
	h.registerStudent("Zoe", "zoe@uni.edu")
	token := h.login("faculty", facultyEmail).AccessToken
	cls := h.createClass(token, "Maths")

	w := h.do(http.MethodGet, "/v1/classes/"+cls.ID+"/roster", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	rosterResp := decode[struct {
		Students []attendance.Student `json:"students"`
	}](t, w)
	require.Len(t, rosterResp.Students, 2)
	assert.Equal(t, "Amit", rosterResp.Students[0].Name)

	w = h.do(http.MethodPost, "/v1/classes/"+cls.ID+"/sessions", gin.H{"records": map[string]string{amit: "Absent"}}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sess := decode[struct {
		Session attendance.Session `json:"session"`
	}](t, w).Session
	assert.Equal(t, "absent", sess.Records[amit])
	assert.Len(t, sess.Records, 2)
	assert.Equal(t, "Dr. Rao", sess.MarkedBy)

	w = h.do(http.MethodPost, "/v1/classes/"+cls.ID+"/sessions", gin.H{"records": map[string]string{amit: "late"}}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -1).Format("2006-01-02")
	end := now.AddDate(0, 0, 1).Format("2006-01-02")
	w = h.do(http.MethodGet, "/v1/classes/"+cls.ID+"/analysis?start="+start+"&end="+end, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	analysis := decode[analysisResponse](t, w)
	require.Len(t, analysis.Results, 2)
	assert.Equal(t, 1, analysis.Results[0].Absent)
	assert.Equal(t, "0.00", analysis.Results[0].Percentage)
	assert.Equal(t, "100.00", analysis.Results[1].Percentage)

	w = h.do(http.MethodGet, "/v1/classes/"+cls.ID+"/analysis?start="+start+"&end="+end+"&format=csv", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Maths_Analysis_"+start+"_to_"+end+".csv")
	assert.Contains(t, w.Body.String(), "Amit")

	w = h.do(http.MethodGet, "/v1/classes/"+cls.ID+"/analysis?start="+end+"&end="+start, nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/v1/classes/"+cls.ID+"/sessions/"+sess.Key+"/sheet", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))

	student := h.login("student", "amit@uni.edu").AccessToken
	w = h.do(http.MethodGet, "/v1/me/attendance", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[dashboard](t, w)
	require.Len(t, dash.Classes, 1)
	assert.Equal(t, 1, dash.Classes[0].Tally.Absent)

	w = h.do(http.MethodGet, "/v1/me/attendance/"+cls.ID+"/report", nil, student)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestClassOwnership(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login("faculty", facultyEmail).AccessToken
	cls := h.createClass(token, "Maths")

	other, err := h.mem.CreateClass(context.Background(), attendance.Class{ClassName: "Physics", CreatedByEmail: "someone@uni.edu"})
	require.NoError(t, err)
	w := h.do(http.MethodDelete, "/v1/classes/"+other.ID, nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/v1/classes", gin.H{"program": "MCA"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodDelete, "/v1/classes/"+cls.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodGet, "/v1/classes/"+cls.ID+"/roster", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectionReconciledWithClassList(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	token := h.login("faculty", facultyEmail).AccessToken
	cls := h.createClass(token, "Maths")

	w := h.do(http.MethodPut, "/v1/selection", gin.H{"classId": cls.ID}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/v1/classes", nil, token)
	list := decode[classListResponse](t, w)
	require.NotNil(t, list.Selected)
	assert.Equal(t, cls.ID, list.Selected.ID)
	require.Len(t, list.Groups, 1)

	// A class deleted from another session leaves a stale selection behind.
	require.NoError(t, h.sel.Save(ctx, facultyEmail, attendance.Class{ID: "gone"}))
	w = h.do(http.MethodGet, "/v1/classes", nil, token)
	list = decode[classListResponse](t, w)
	assert.Nil(t, list.Selected)
	stored, err := h.sel.Load(ctx, facultyEmail)
	require.NoError(t, err)
	assert.Nil(t, stored)

	w = h.do(http.MethodPut, "/v1/selection", gin.H{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type clearFailing struct{ *selection.Memory }

func (clearFailing) Clear(context.Context, string) error { return errors.New("selection backend down") }

func TestDeleteClassLogsSelectionFailure(t *testing.T) {
	var logs bytes.Buffer
	h := buildHarness(t, nil, func(m *selection.Memory) selection.Backend { return clearFailing{m} }, zerolog.New(&logs))
	token := h.login("faculty", facultyEmail).AccessToken
	cls := h.createClass(token, "Maths")
	w := h.do(http.MethodPut, "/v1/selection", gin.H{"classId": cls.ID}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodDelete, "/v1/classes/"+cls.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, logs.String(), "clear selection after delete failed")
	assert.Contains(t, logs.String(), "selection backend down")
}

func TestLogoutClearsSelection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.login("faculty", facultyEmail)
	cls := h.createClass(s.AccessToken, "Maths")
	w := h.do(http.MethodPut, "/v1/selection", gin.H{"classId": cls.ID}, s.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/v1/auth/logout", gin.H{"refresh_token": s.RefreshToken}, s.AccessToken)
	require.Equal(t, http.StatusNoContent, w.Code)

	stored, err := h.sel.Load(ctx, facultyEmail)
	require.NoError(t, err)
	assert.Nil(t, stored)

	w = h.do(http.MethodPost, "/v1/auth/refresh", gin.H{"refresh_token": s.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func photoRequest(t *testing.T, token, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="me.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, "/v1/me/photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadPhoto(t *testing.T) {
	h := newHarness(t, nil)
	id := h.registerStudent("Amit", "amit@uni.edu")
	token := h.login("student", "amit@uni.edu").AccessToken

	tests := []struct {
		name        string
		contentType string
		size        int
		want        int
	}{
		{name: "too large", contentType: "image/png", size: 2048, want: http.StatusRequestEntityTooLarge},
		{name: "not an image", contentType: "application/pdf", size: 10, want: http.StatusBadRequest},
		{name: "ok", contentType: "image/png", size: 10, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.router.ServeHTTP(w, photoRequest(t, token, tt.contentType, bytes.Repeat([]byte{1}, tt.size)))
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	st, err := h.mem.GetStudent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(st.ProfileImage, "data:image/png;base64,"))
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	h = newHarness(t, map[string]func(context.Context) bool{
		"redis": func(context.Context) bool { return false },
	})
	w = h.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":false}`, w.Body.String())
}

func TestUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/classes", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/v1/classes", nil, "garbage").Code)
	assert.Equal(t, http.StatusNotImplemented, h.do(http.MethodPost, "/v1/auth/firebase", gin.H{"id_token": "x"}, "").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/catalog", nil, "").Code)
}

func TestLiveAnalysisFeed(t *testing.T) {
	h := newHarness(t, nil)
	amit := h.registerStudent("Amit", "amit@uni.edu")
	token := h.login("faculty", facultyEmail).AccessToken
	cls := h.createClass(token, "Maths")
	topic := live.ClassSessionsTopic(cls.ID)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	day := time.Now().UTC().Format("2006-01-02")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/live/classes/" + cls.ID +
		"/analysis?start=" + day + "&end=" + day + "&token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()

	type snapshot struct {
		Event string           `json:"event"`
		Data  analysisResponse `json:"data"`
	}
	read := func() snapshot {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg snapshot
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "SNAPSHOT", first.Event)
	require.Len(t, first.Data.Results, 1)
	assert.Equal(t, 0, first.Data.Results[0].Total)
	assert.Equal(t, 1, h.hub.Subscribers(topic))

	w := h.do(http.MethodPost, "/v1/classes/"+cls.ID+"/sessions", gin.H{"records": map[string]string{amit: "absent"}}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	second := read()
	assert.Equal(t, "SNAPSHOT", second.Event)
	require.Len(t, second.Data.Results, 1)
	assert.Equal(t, 1, second.Data.Results[0].Total)
	assert.Equal(t, 1, second.Data.Results[0].Absent)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.hub.Subscribers(topic) == 0 },
		5*time.Second, 10*time.Millisecond, "feed unsubscribes on disconnect")
}

func TestLiveFeedRejectsUnknownClass(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login("faculty", facultyEmail).AccessToken

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/live/classes/missing/analysis?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
