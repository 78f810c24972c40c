package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnoma/tutor-admin-api/pkg/middleware/requestid"
)

// Context keys for the meta block of reconciliation reads.
const (
	metaKey      = "reconcile_meta"
	startedAtKey = "reconcile_started_at"
	cacheHitKey  = "cache_hit"
)

// WithResponseMeta stamps the request start so reconciliation reads can report
// their elapsed time alongside whether Redis served them.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(startedAtKey, time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the payload came from the reconciliation cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if c == nil {
		return
	}
	meta(c)[cacheHitKey] = hit
}

// ResponseMeta returns the envelope meta for the current request, filling in
// request_id and processing_time_ms. It is nil when the request recorded
// nothing and was not stamped by WithResponseMeta.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	_, recorded := c.Get(metaKey)
	started, stamped := c.Get(startedAtKey)
	if !recorded && !stamped {
		return nil
	}
	out := meta(c)
	if t, ok := started.(time.Time); ok {
		out["processing_time_ms"] = time.Since(t).Milliseconds()
	}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func meta(c *gin.Context) map[string]interface{} {
	if v, ok := c.Get(metaKey); ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	m := map[string]interface{}{}
	c.Set(metaKey, m)
	return m
}
