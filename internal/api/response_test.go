package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	type payload struct {
		Text string `json:"text"`
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"text":"hi"}`, 0},
		{"unknown field", `{"text":"hi","extra":1}`, http.StatusBadRequest},
		{"trailing object", `{"text":"a"}{"text":"b"}`, http.StatusBadRequest},
		{"not json", `hello`, http.StatusBadRequest},
		{"too large", `{"text":"` + strings.Repeat("x", maxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := Decode(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)), &p)
			if tt.status == 0 {
				require.NoError(t, err)
				assert.Equal(t, "hi", p.Text)
				return
			}
			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.status, appErr.Code)
		})
	}
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, NewUnavailableError("archiving is disabled"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"archiving is disabled"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HandleError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
