package interlock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestHTTPOracle_Verdicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/interlock/pump-1":
			w.Write([]byte(`{"blocked":true}`))
		case "/interlock/fan-1":
			w.Write([]byte(`{"blocked":false}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, 0, zerolog.Nop())
	ctx := context.Background()

	assert.False(t, o.MayStart(ctx, "pump-1"))
	assert.True(t, o.MayStart(ctx, "fan-1"))
}

func TestHTTPOracle_FailsOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable service", func(t *testing.T) {
		o := NewHTTPOracle("http://127.0.0.1:1", 100*time.Millisecond, zerolog.Nop())
		assert.True(t, o.MayStart(ctx, "pump-1"))
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		o := NewHTTPOracle(srv.URL, 0, zerolog.Nop())
		assert.True(t, o.MayStart(ctx, "pump-1"))
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		o := NewHTTPOracle(srv.URL, 0, zerolog.Nop())
		assert.True(t, o.MayStart(ctx, "pump-1"))
	})

	t.Run("slow service", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(`{"blocked":true}`))
		}))
		defer srv.Close()

		o := NewHTTPOracle(srv.URL, 50*time.Millisecond, zerolog.Nop())
		assert.True(t, o.MayStart(ctx, "pump-1"))
	})
}

func TestHTTPOracle_EscapesEquipmentName(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"blocked":false}`))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, 0, zerolog.Nop())
	o.MayStart(context.Background(), "pump/1")
	assert.Equal(t, "/interlock/pump%2F1", gotPath)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Static{Allow: true}.MayStart(ctx, "x"))
	assert.False(t, Static{Allow: false}.MayStart(ctx, "x"))
}
