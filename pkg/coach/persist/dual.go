package persist

import (
	"context"
	"errors"
	"log/slog"
)

// Dual writes through two bridges, typically server-side Postgres backed
// by local SQLite. A write succeeds when at least one side accepts it;
// reads prefer the primary and fall through to the secondary.
type Dual struct {
	primary   Bridge
	secondary Bridge
	logger    *slog.Logger
}

var _ Bridge = (*Dual)(nil)

// NewDual wraps primary and secondary. A nil logger uses slog.Default.
func NewDual(primary, secondary Bridge, logger *slog.Logger) *Dual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dual{primary: primary, secondary: secondary, logger: logger.With("component", "persist")}
}

func (d *Dual) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := d.primary.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		d.logger.Warn("primary read failed, trying secondary", "kind", key.Kind, "error", err)
	}
	return d.secondary.Get(ctx, key)
}

func (d *Dual) Set(ctx context.Context, key Key, data []byte) error {
	perr := d.primary.Set(ctx, key, data)
	serr := d.secondary.Set(ctx, key, data)
	if perr != nil && serr != nil {
		return errors.Join(perr, serr)
	}
	if perr != nil {
		d.logger.Warn("primary write failed, secondary holds the state", "kind", key.Kind, "error", perr)
	} else if serr != nil {
		d.logger.Warn("secondary write failed", "kind", key.Kind, "error", serr)
	}
	return nil
}

func (d *Dual) Delete(ctx context.Context, key Key) error {
	perr := d.primary.Delete(ctx, key)
	serr := d.secondary.Delete(ctx, key)
	if perr != nil && serr != nil {
		return errors.Join(perr, serr)
	}
	return nil
}

func (d *Dual) Close() error {
	return errors.Join(d.primary.Close(), d.secondary.Close())
}
