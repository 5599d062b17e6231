// Package httpapi is the debug/admin HTTP surface for a mesh node. It is
// read/write sugar over the in-process Node API for cmd/meshctl's
// put/get/delete/status/repl subcommands to drive; it never participates in
// the gossip protocol itself — all inter-node replication stays on the
// UDP transport (spec.md §4.1). Grounded on the teacher's internal/api
// package (handlers.go + middleware.go), built with gin.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meshkv/internal/meshnode"
)

// Handler holds the single dependency this surface needs: the node itself.
type Handler struct {
	node *meshnode.Node
}

// NewHandler creates a Handler for node.
func NewHandler(node *meshnode.Node) *Handler {
	return &Handler{node: node}
}

// Register mounts every route on r, matching the teacher's route
// grouping style (a dedicated group per concern).
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/status", h.Status)

	kv := r.Group("/kv")
	kv.GET("", h.AllData)
	kv.GET("/:key", h.Get)
	kv.PUT("/:key", h.Put)
	kv.DELETE("/:key", h.Delete)
}

// Status handles GET /status, returning the exact shape spec.md §6
// defines for the node's status() operation.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.Status())
}

// AllData handles GET /kv, returning every live key/value pair.
func (h *Handler) AllData(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.AllData())
}

// Get handles GET /kv/:key.
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")
	value, ok := h.node.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// putBody is the PUT /kv/:key request shape. Value is intentionally `any`
// since spec.md §3 treats values as opaque, JSON-encodable payloads.
type putBody struct {
	Value any `json:"value"`
}

// Put handles PUT /kv/:key.
//
// Body: {"value": <any JSON value>}
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")

	var body putBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.node.Set(key, body.Value)
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}

// Delete handles DELETE /kv/:key.
func (h *Handler) Delete(c *gin.Context) {
	key := c.Param("key")
	h.node.Delete(key)
	c.JSON(http.StatusOK, gin.H{"deleted": key})
}
