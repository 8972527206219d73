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

// The store is never reached on validation failures, so a nil store is enough.
func newRouter() *gin.Engine {
	ic := NewInventoryController(nil)
	r := gin.New()
	r.POST("/dispense", ic.Dispense)
	r.POST("/batches", ic.CreateBatch)
	r.POST("/batches/:id/adjust", ic.AdjustBatch)
	r.GET("/expiring", ic.GetExpiringBatches)
	r.GET("/items/:id", ic.GetItem)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func fieldsOf(resp envelope) []string {
	fields := []string{}
	for _, fe := range resp.Errors {
		fields = append(fields, fe.Field)
	}
	return fields
}

func TestDispenseValidation(t *testing.T) {
	r := newRouter()

	status, resp := do(t, r, http.MethodPost, "/dispense", `{"batch_id":"abc","quantity":-1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
	assert.Equal(t, security.CodeValidationError, resp.Code)
	assert.ElementsMatch(t, []string{"batch_id", "quantity"}, fieldsOf(resp))
}

func TestCreateBatchValidation(t *testing.T) {
	r := newRouter()

	body := `{"inventory_item_id":"6f1c1c4e-0b6a-4d55-9a52-0d4b7b1f9a10","batch_number":"","quantity":0,"unit_cost":"1.00","selling_price":"2.00","expiry_date":"10/03/2027"}`
	status, resp := do(t, r, http.MethodPost, "/batches", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.ElementsMatch(t, []string{"batch_number", "quantity", "expiry_date"}, fieldsOf(resp))
}

func TestCreateBatchRejectsNegativePrices(t *testing.T) {
	r := newRouter()

	body := `{"inventory_item_id":"6f1c1c4e-0b6a-4d55-9a52-0d4b7b1f9a10","batch_number":"B1","quantity":5,"unit_cost":"-1.00","selling_price":"2.00","expiry_date":"2027-03-10"}`
	status, resp := do(t, r, http.MethodPost, "/batches", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"unit_cost"}, fieldsOf(resp))
}

func TestCreateBatchReportsNegativeSellingPrice(t *testing.T) {
	r := newRouter()

	body := `{"inventory_item_id":"6f1c1c4e-0b6a-4d55-9a52-0d4b7b1f9a10","batch_number":"B1","quantity":5,"unit_cost":"1.00","selling_price":"-2.00","expiry_date":"2027-03-10"}`
	status, resp := do(t, r, http.MethodPost, "/batches", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"selling_price"}, fieldsOf(resp))

	body = `{"inventory_item_id":"6f1c1c4e-0b6a-4d55-9a52-0d4b7b1f9a10","batch_number":"B1","quantity":5,"unit_cost":"-1.00","selling_price":"-2.00","expiry_date":"2027-03-10"}`
	status, resp = do(t, r, http.MethodPost, "/batches", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"unit_cost", "selling_price"}, fieldsOf(resp))
}

func TestAdjustRequiresNonZeroDeltaAndReason(t *testing.T) {
	r := newRouter()

	status, resp := do(t, r, http.MethodPost, "/batches/0b5e8a55-5f3f-4b8f-8a3b-3d7f9f6f2c21/adjust", `{"delta":0}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.ElementsMatch(t, []string{"delta", "reason"}, fieldsOf(resp))
}

func TestExpiringDaysRange(t *testing.T) {
	r := newRouter()

	status, resp := do(t, r, http.MethodGet, "/expiring?days=400", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"days"}, fieldsOf(resp))
}

func TestGetItemRejectsMalformedID(t *testing.T) {
	r := newRouter()

	status, resp := do(t, r, http.MethodGet, "/items/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"id"}, fieldsOf(resp))
}
