package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
)

type signupBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

func TestDecodeValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","password":""}`))
	var body signupBody
	err := Decode(req, &body)
	require.Error(t, err)

	e := apperr.From(err)
	assert.Equal(t, apperr.Validation, e.Kind)
	require.Len(t, e.Details, 2)
	assert.Equal(t, "email", e.Details[0].Field)
	assert.Equal(t, "email must be a valid email address", e.Details[0].Message)
	assert.Equal(t, "password is required", e.Details[1].Message)
	assert.Equal(t, e.Details[0].Message, e.Msg)
}

func TestDecodeMalformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))
	var body signupBody
	err := Decode(req, &body)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	assert.Equal(t, "invalid payload", apperr.From(err).Msg)
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	WriteError(rec, req, zap.NewNop().Sugar(), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestWriteErrorMapsKind(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	WriteError(rec, req, zap.NewNop().Sugar(), apperr.New(apperr.NotFound, "User not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
}

func TestPage(t *testing.T) {
	for q, want := range map[string]int{"": 1, "page=3": 3, "page=0": 1, "page=-2": 1, "page=abc": 1} {
		req := httptest.NewRequest(http.MethodGet, "/api/user/posts?"+q, nil)
		assert.Equal(t, want, Page(req), q)
	}
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var got int64
	var gotErr error
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = PathID(r, "id")
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, int64(42), got)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/x", nil))
	assert.Equal(t, apperr.Validation, apperr.KindOf(gotErr))
}

func TestFlexValues(t *testing.T) {
	var body struct {
		UserID FlexID     `json:"userId"`
		OTP    FlexString `json:"otp"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"userId":"17","otp":123456}`), &body))
	assert.Equal(t, FlexID(17), body.UserID)
	assert.Equal(t, FlexString("123456"), body.OTP)

	require.NoError(t, json.Unmarshal([]byte(`{"userId":17,"otp":"012345"}`), &body))
	assert.Equal(t, FlexID(17), body.UserID)
	assert.Equal(t, FlexString("012345"), body.OTP)

	assert.Error(t, json.Unmarshal([]byte(`{"userId":"abc"}`), &body))
	assert.Error(t, json.Unmarshal([]byte(`{"otp":{}}`), &body))
}
