package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func guarded(mw gin.HandlerFunc, headers map[string]string) int {
	r := gin.New()
	r.POST("/run", mw, func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireCronSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		headers map[string]string
		want    int
	}{
		{"bearer", "s3cret", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"x-cron-secret", "s3cret", map[string]string{"x-cron-secret": "s3cret"}, http.StatusOK},
		{"cron-secret", "s3cret", map[string]string{"cron-secret": "s3cret"}, http.StatusOK},
		{"missing", "s3cret", nil, http.StatusUnauthorized},
		{"wrong", "s3cret", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"prefix only", "s3cret", map[string]string{"x-cron-secret": "s3cre"}, http.StatusUnauthorized},
		{"basic scheme", "s3cret", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
		{"unconfigured", "", map[string]string{"Authorization": "Bearer "}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guarded(RequireCronSecret(tt.secret), tt.headers))
		})
	}
}

func TestOptionalCronSecret(t *testing.T) {
	mw := OptionalCronSecret("s3cret")
	assert.Equal(t, http.StatusOK, guarded(mw, nil))
	assert.Equal(t, http.StatusOK, guarded(mw, map[string]string{"Authorization": "Bearer s3cret"}))
	assert.Equal(t, http.StatusUnauthorized, guarded(mw, map[string]string{"Authorization": "Bearer nope"}))
}

func TestRequireAdminKey(t *testing.T) {
	assert.Equal(t, http.StatusOK, guarded(RequireAdminKey("adm"), map[string]string{"Authorization": "Bearer adm"}))
	assert.Equal(t, http.StatusUnauthorized, guarded(RequireAdminKey("adm"), nil))
	assert.Equal(t, http.StatusUnauthorized, guarded(RequireAdminKey("adm"), map[string]string{"Authorization": "Bearer x"}))
	assert.Equal(t, http.StatusInternalServerError, guarded(RequireAdminKey(""), nil))
}
