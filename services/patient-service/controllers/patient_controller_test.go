package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/security"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := security.RegisterValidators(); err != nil {
		panic(err)
	}
}

type envelope struct {
	Success bool                  `json:"success"`
	Code    string                `json:"code"`
	Errors  []security.FieldError `json:"errors"`
}

const validID = "2c4e6a8b-0d1f-4e3a-9b5c-7d9f1b3d5e7a"

func newRouter() *gin.Engine {
	pc := NewPatientController(nil, nil)
	vc := NewVisitController(nil, nil)
	r := gin.New()
	r.POST("/patients", pc.Create)
	r.GET("/patients", pc.List)
	r.GET("/patients/search", pc.Search)
	r.GET("/patients/:id", pc.Get)
	r.PUT("/patients/:id", pc.Update)
	r.POST("/patients/import", pc.Import)
	r.GET("/patients/:id/visits", pc.Visits)
	r.POST("/visits", vc.Create)
	r.GET("/visits", vc.List)
	r.GET("/visits/:id", vc.Get)
	r.PATCH("/visits/:id/status", vc.UpdateStatus)
	return r
}

func do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func fields(env envelope) []string {
	out := make([]string, 0, len(env.Errors))
	for _, e := range env.Errors {
		out = append(out, e.Field)
	}
	return out
}

func TestCreatePatientValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing first name", `{"last_name":"Wanjiku","gender":"FEMALE","insurance_type":"CASH"}`, "first_name"},
		{"unknown gender", `{"first_name":"Jane","last_name":"Wanjiku","gender":"F","insurance_type":"CASH"}`, "gender"},
		{"unknown insurance", `{"first_name":"Jane","last_name":"Wanjiku","gender":"FEMALE","insurance_type":"NHIF"}`, "insurance_type"},
		{"bad phone", `{"first_name":"Jane","last_name":"Wanjiku","gender":"FEMALE","insurance_type":"CASH","phone_number":"12345"}`, "phone_number"},
		{"bad date of birth", `{"first_name":"Jane","last_name":"Wanjiku","gender":"FEMALE","insurance_type":"CASH","date_of_birth":"10/03/1990"}`, "date_of_birth"},
		{"age out of range", `{"first_name":"Jane","last_name":"Wanjiku","gender":"FEMALE","insurance_type":"CASH","age":151}`, "age"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, env := do(t, http.MethodPost, "/patients", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Contains(t, fields(env), tc.field)
		})
	}
}

func TestListPatientsRejectsLargePage(t *testing.T) {
	w, env := do(t, http.MethodGet, "/patients?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"limit"}, fields(env))
}

func TestSearchPatientsRequiresQuery(t *testing.T) {
	w, env := do(t, http.MethodGet, "/patients/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"q"}, fields(env))

	w, env = do(t, http.MethodGet, "/patients/search?q=jane&limit=51", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"limit"}, fields(env))
}

func TestPatientRoutesRejectMalformedID(t *testing.T) {
	for _, path := range []string{"/patients/P-7", "/patients/P-7/visits", "/visits/V-1"} {
		w, env := do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.False(t, env.Success, path)
	}
}

func TestUpdatePatientValidation(t *testing.T) {
	w, env := do(t, http.MethodPut, "/patients/"+validID, `{"insurance_type":"NHIF","gender":"F"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []string{"insurance_type", "gender"}, fields(env))
}

func TestImportPatientsValidation(t *testing.T) {
	w, env := do(t, http.MethodPost, "/patients/import", `{"patients":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"patients"}, fields(env))

	w, env = do(t, http.MethodPost, "/patients/import",
		`{"patients":[{"op_number":"OP-2025-100","first_name":"Jane","last_name":"Wanjiku","gender":"X","insurance_type":"CASH"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"patients[0].gender"}, fields(env))
}

func TestCreateVisitValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing patient", `{}`, "patient_id"},
		{"bad patient id", `{"patient_id":"P-7"}`, "patient_id"},
		{"unknown triage", `{"patient_id":"` + validID + `","triage_category":"LOW"}`, "triage_category"},
		{"unknown payment type", `{"patient_id":"` + validID + `","payment_type":"MPESA"}`, "payment_type"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, env := do(t, http.MethodPost, "/visits", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, []string{tc.field}, fields(env))
		})
	}
}

func TestListVisitsValidation(t *testing.T) {
	w, env := do(t, http.MethodGet, "/visits?status=WAITING&date=2026-3-10", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []string{"status", "date"}, fields(env))
}

func TestUpdateVisitStatusValidation(t *testing.T) {
	w, env := do(t, http.MethodPatch, "/visits/"+validID+"/status", `{"status":"DISCHARGED"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"status"}, fields(env))
}
