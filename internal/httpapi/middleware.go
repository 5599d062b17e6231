package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"meshkv/internal/meshnode"
)

// Logger is a Gin middleware that logs every request through n's own
// logger (the same stream the mesh's sync/heartbeat/discovery loops log
// to), tagged with the node id and its current alive-peer count so admin
// HTTP traffic reads as part of one node's activity rather than an
// unlabeled generic access log.
func Logger(n *meshnode.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		n.Logger().Printf("httpapi[%s]: [%s] %s %s | %d | %s | alive_peers=%d",
			n.NodeID(),
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
			n.Status().Peers.Alive,
		)
	}
}

// Recovery wraps Gin's default recovery but logs panics through n's own
// logger, tagged with the node id. A panic inside a handler here is this
// surface's own programmer error — it is caught so the admin HTTP
// listener never takes the whole node process down over a bad request.
func Recovery(n *meshnode.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				n.Logger().Printf("httpapi[%s]: PANIC recovered: %v", n.NodeID(), err)
				c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
