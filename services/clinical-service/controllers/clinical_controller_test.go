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

const validID = "0b6f3c2a-8d4e-4f1a-9c7b-5e2d1a0f3b4c"

func newRouter() *gin.Engine {
	pc := NewPrescriptionController(nil)
	lc := NewLabController(nil)
	r := gin.New()
	r.POST("/prescriptions", pc.Create)
	r.GET("/prescriptions/:id", pc.GetByID)
	r.PATCH("/prescriptions/:id/status", pc.UpdateStatus)
	r.PATCH("/prescriptions/items/:id/dispense", pc.DispenseItem)
	r.POST("/lab-requests", lc.CreateRequest)
	r.GET("/lab-requests", lc.ListRequests)
	r.GET("/lab-requests/completed", lc.ListCompleted)
	r.PATCH("/lab-requests/:id/status", lc.UpdateStatus)
	r.GET("/lab-tests/search", lc.SearchTests)
	r.POST("/lab-tests", lc.CreateTest)
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

func TestCreatePrescriptionValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no items", `{"patient_id":"` + validID + `","items":[]}`, "items"},
		{"bad patient", `{"patient_id":"P-1","items":[{"item_name":"Amoxicillin","dosage":"500mg","frequency":"TDS","duration":"5 days","quantity_prescribed":15}]}`, "patient_id"},
		{"zero quantity", `{"patient_id":"` + validID + `","items":[{"item_name":"Amoxicillin","dosage":"500mg","frequency":"TDS","duration":"5 days","quantity_prescribed":0}]}`, "items[0].quantity_prescribed"},
		{"missing dosage", `{"patient_id":"` + validID + `","items":[{"item_name":"Amoxicillin","frequency":"TDS","duration":"5 days","quantity_prescribed":15}]}`, "items[0].dosage"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, env := do(t, http.MethodPost, "/prescriptions", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, security.CodeValidationError, env.Code)
			assert.Contains(t, fields(env), tc.field)
		})
	}
}

func TestPrescriptionRejectsNonUUID(t *testing.T) {
	w, env := do(t, http.MethodGet, "/prescriptions/RX-1", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "id")
}

func TestPrescriptionStatusMustBeKnown(t *testing.T) {
	w, env := do(t, http.MethodPatch, "/prescriptions/"+validID+"/status", `{"status":"ARCHIVED"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "status")
}

func TestDispenseItemRequiresPositiveQuantity(t *testing.T) {
	w, env := do(t, http.MethodPatch, "/prescriptions/items/"+validID+"/dispense", `{"quantity":-2}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "quantity")
}

func TestCreateLabRequestValidation(t *testing.T) {
	w, env := do(t, http.MethodPost, "/lab-requests",
		`{"patient_id":"`+validID+`","urgency":"ASAP","items":[{"test_id":"FBC"}]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "urgency")
	assert.Contains(t, fields(env), "items[0].test_id")
}

func TestListLabRequestsRejectsUnknownFilters(t *testing.T) {
	w, env := do(t, http.MethodGet, "/lab-requests?status=DONE", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "status")

	w, env = do(t, http.MethodGet, "/lab-requests/completed?from=10-03-2026", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "from")
}

func TestLabStatusRejectsCollectorNotUUID(t *testing.T) {
	w, env := do(t, http.MethodPatch, "/lab-requests/"+validID+"/status",
		`{"status":"SAMPLE_COLLECTED","collected_by":"nurse-jane"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "collected_by")
}

func TestSearchTestsNeedsTwoCharacters(t *testing.T) {
	w, env := do(t, http.MethodGet, "/lab-tests/search?q=h", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "q")
}

func TestCreateLabTestRejectsNegativePrice(t *testing.T) {
	w, env := do(t, http.MethodPost, "/lab-tests",
		`{"test_code":"FBC","test_name":"Full Blood Count","test_category":"Haematology","specimen_type":"Whole blood","price":-10}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fields(env), "price")
}
