package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/config"
	"github.com/sells-group/raiox/internal/resilience"
	"github.com/sells-group/raiox/internal/store"
)

// openStore connects to the configured backend, retrying transient
// failures while the database comes up.
func openStore(ctx context.Context, c config.StoreConfig, retry config.RetryConfig) (store.Store, error) {
	rc := resilience.FromConfig(retry)
	rc.OnRetry = resilience.RetryLogger("store.open")

	st, err := resilience.DoVal(ctx, rc, func(ctx context.Context) (store.Store, error) {
		st, err := newStore(ctx, c)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "ping store")
		}
		return st, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", c.Driver)
	}
	zap.L().Info("store connected", zap.String("driver", c.Driver))
	return st, nil
}

func newStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "raiox.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{
			MaxConns: c.MaxConns,
			MinConns: c.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}
