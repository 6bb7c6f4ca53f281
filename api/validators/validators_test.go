package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
)

type sampleRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"ne=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	var dest sampleRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","quantity":-2}`))
	require.NoError(t, DecodeJSONBody(httptest.NewRecorder(), req, &dest))
	assert.Equal(t, -2, dest.Quantity)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	err := DecodeJSONBody(httptest.NewRecorder(), req, &dest)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must not be 0", details["quantity"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","quantity":1,"extra":true}`))
	assert.Error(t, DecodeJSONBody(httptest.NewRecorder(), req, &dest))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.Error(t, DecodeJSONBody(httptest.NewRecorder(), req, &dest))
}

func TestQueryParsers(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=abc&product_id="+id.String()+"&from=2026-01-02", nil)

	page, err := ParsePage(req)
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, "abc", page.Cursor)

	got, err := ParseQueryUUID(req, "product_id")
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	from, err := ParseQueryTime(req, "from")
	require.NoError(t, err)
	assert.Equal(t, 2, from.Day())

	missing, err := ParseQueryTime(req, "to")
	require.NoError(t, err)
	assert.Nil(t, missing)

	bad := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err = ParsePage(bad)
	assert.Error(t, err)
}

func TestURLParamUUID(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := URLParamUUID(req, "orderId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = URLParamUUID(req, "poId")
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc", Sanitize("  abc  ", 10))
	assert.Equal(t, "ñá", Sanitize("ñáé", 2))
}
