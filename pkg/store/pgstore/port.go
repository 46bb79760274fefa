package pgstore

import (
	"context"

	"github.com/hyxiaoge/prompthub/pkg/store"
)

// Port adapts Client to store.Port.
type Port struct {
	client *Client
}

func NewPort(client *Client) *Port { return &Port{client: client} }

func (p *Port) Begin(ctx context.Context) (store.Tx, error) {
	pgxTx, err := p.client.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &tx{pgxTx: pgxTx}, nil
}
