package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/session"
	"github.com/Lejs5034/LegionOfBrothers-sub000/middleware/jwt"
	logger "github.com/Lejs5034/LegionOfBrothers-sub000/middleware/log"
)

type verifierFunc func(ctx context.Context, token string) (*jwt.Claims, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (*jwt.Claims, error) {
	return f(ctx, token)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"lowercase scheme", "bearer abc", "", "abc"},
		{"query fallback", "", "xyz", "xyz"},
		{"wrong scheme falls back", "Basic abc", "xyz", "xyz"},
		{"nothing", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			target := "/"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			c.Request = httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			assert.Equal(t, tc.want, BearerToken(c))
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	verifier := verifierFunc(func(_ context.Context, token string) (*jwt.Claims, error) {
		if token != "good" {
			return nil, jwt.ErrInvalidToken
		}
		return &jwt.Claims{UserID: "u1", UserName: "ari", Rank: "user"}, nil
	})
	checker := session.NewChecker(verifier, time.Second, "/signin", nil)

	r := gin.New()
	r.GET("/me", AuthMiddleware(checker), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":   c.GetString(ContextUserID),
			"name": c.GetString(ContextUserName),
			"rank": c.GetString(ContextRank),
		})
	})

	t.Run("valid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer good")
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"id": "u1", "name": "ari", "rank": "user"}, body)
	})

	for _, token := range []string{"", "bad"} {
		t.Run("rejected "+token, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))

			require.Equal(t, http.StatusUnauthorized, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "/signin", body["redirect"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTraceAndAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := &logger.Logger{Logger: zap.New(core)}

	r := gin.New()
	r.Use(TraceMiddleware(base), AccessLog(base))
	r.GET("/ok", func(c *gin.Context) {
		logger.FromContext(c.Request.Context(), logger.NewNop()).Info("handled")
		c.Status(http.StatusOK)
	})
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	t.Run("incoming id is kept", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(TraceHeader, "trace-1")
		r.ServeHTTP(w, req)

		assert.Equal(t, "trace-1", w.Header().Get(TraceHeader))
		handled := logs.FilterMessage("handled").All()
		require.Len(t, handled, 1)
		assert.Equal(t, "trace-1", handled[0].ContextMap()["trace_id"])

		access := logs.FilterMessage("request").All()
		require.NotEmpty(t, access)
		last := access[len(access)-1]
		assert.Equal(t, zapcore.InfoLevel, last.Level)
		assert.Equal(t, "trace-1", last.ContextMap()["trace_id"])
	})

	t.Run("missing id is generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

		assert.NotEmpty(t, w.Header().Get(TraceHeader))
		access := logs.FilterMessage("request").All()
		last := access[len(access)-1]
		assert.Equal(t, zapcore.WarnLevel, last.Level)
		assert.EqualValues(t, http.StatusNotFound, last.ContextMap()["status"])
	})
}
