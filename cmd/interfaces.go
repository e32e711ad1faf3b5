package cmd

import (
	"context"

	"github.com/anicoll/ato-dashboard/internal/pkg/model"
)

// Connection is the socket link to the controller.
type Connection interface {
	Connect(ctx context.Context) error
	Send(cmd any) bool
	Close()
}

// ConnectionFactory builds a connection that reports to the given callbacks.
type ConnectionFactory func(onStatus func(model.ConnectionState), onSnapshot func(model.Snapshot)) Connection

type cleaner interface {
	Cleanup(ctx context.Context) error
}
