package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/medialens/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "test", data["name"])
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"job_id": "j1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "j1", data["job_id"])
}

func TestCollection(t *testing.T) {
	w := httptest.NewRecorder()
	items := []map[string]string{{"id": "1"}, {"id": "2"}}

	response.Collection(w, items, len(items))

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	data := body["data"].([]any)
	assert.Len(t, data, 2)
	m := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), m["count"])
}

func TestCollection_CountIsWrittenAsGiven(t *testing.T) {
	w := httptest.NewRecorder()
	jobs := []map[string]any{{"subject_id": "$a:example.org", "status": "failed"}}

	// Count is written as given, not derived from data.
	response.Collection(w, jobs, 37)

	var body struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "failed", body.Data[0]["status"])
	assert.Equal(t, 37, body.Meta.Count)
}

func TestCollection_EmptyList(t *testing.T) {
	w := httptest.NewRecorder()
	response.Collection(w, []string{}, 0)

	assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, w.Body.String())
}

func TestAccepted_RequeueEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, struct {
		SubjectID string `json:"subject_id"`
		Status    string `json:"status"`
	}{"$evt:example.org", "pending"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"data":{"subject_id":"$evt:example.org","status":"pending"}}`, w.Body.String())
}

func TestJSON_UnencodableValueKeepsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Body.String())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid params", map[string][]string{
		"subject_id": {"subject_id is required"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Equal(t, "Invalid params", errObj["message"])
	assert.NotNil(t, errObj["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errObj["code"])
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}
