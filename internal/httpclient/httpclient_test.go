package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := New(Options{})
		assert.Equal(t, 180*time.Second, c.Timeout)
		tr, ok := c.Transport.(*http.Transport)
		require.True(t, ok)
		assert.Equal(t, 180*time.Second, tr.ResponseHeaderTimeout)
	})

	t.Run("header timeout never exceeds the request timeout", func(t *testing.T) {
		c := New(Options{Timeout: 30 * time.Second, ResponseHeaderTimeout: time.Minute})
		tr := c.Transport.(*http.Transport)
		assert.Equal(t, 30*time.Second, tr.ResponseHeaderTimeout)
	})

	t.Run("explicit header timeout", func(t *testing.T) {
		c := New(Options{Timeout: time.Minute, ResponseHeaderTimeout: 20 * time.Second})
		tr := c.Transport.(*http.Transport)
		assert.Equal(t, 20*time.Second, tr.ResponseHeaderTimeout)
	})
}
