package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hyxiaoge/prompthub/pkg/store"
)

// withTx runs fn inside a fresh transaction, committing on success and
// rolling back on any error, then writes the envelope response. The
// handler itself never sees store.Port or a raw error path — it only
// builds the request and reads back fn's result.
func (s *Server) withTx(c *gin.Context, fn func(ctx context.Context, tx store.Tx) (any, error)) {
	ctx := c.Request.Context()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	result, err := fn(ctx, tx)
	if err != nil {
		tx.Rollback(ctx)
		fail(c, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

// withTxCreated is withTx but responds 201 on success, for POST handlers
// that create a resource.
func (s *Server) withTxCreated(c *gin.Context, fn func(ctx context.Context, tx store.Tx) (any, error)) {
	ctx := c.Request.Context()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	result, err := fn(ctx, tx)
	if err != nil {
		tx.Rollback(ctx)
		fail(c, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		fail(c, err)
		return
	}
	created(c, result)
}

// withTxNoContent is withTx for handlers that only need to succeed or
// fail, with no payload (deletes).
func (s *Server) withTxNoContent(c *gin.Context, fn func(ctx context.Context, tx store.Tx) error) {
	ctx := c.Request.Context()
	tx, err := s.store.Begin(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	if err := fn(ctx, tx); err != nil {
		tx.Rollback(ctx)
		fail(c, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		fail(c, err)
		return
	}
	noContent(c)
}
