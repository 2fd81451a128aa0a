package backend

import (
	"context"
	"errors"
	"fmt"
)

// Export implements Backend. The snapshot holds the records in scope in
// insertion order together with the driver configuration.
func (c *Collection) Export(ctx context.Context) (*Snapshot, error) {
	recs, err := c.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Type:           c.Type(),
		Key:            c.key,
		UserID:         c.tenant.UserID,
		ConversationID: c.tenant.ConversationID,
		Config:         c.idx.Config(),
		Records:        recs,
	}, nil
}

// Import implements Backend. The scope is cleared first and every record is
// re-added under this handle's tenant. Per-record failures are joined.
func (c *Collection) Import(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return ErrNilSnapshot
	}
	if snap.Type != "" && snap.Type != c.Type() {
		c.log.InfoContext(ctx, "importing snapshot from another driver", "from", snap.Type)
	}

	if _, err := c.Clear(ctx, nil); err != nil {
		return err
	}

	var errs []error
	for i := range snap.Records {
		if _, err := c.Add(ctx, snap.Records[i]); err != nil {
			errs = append(errs, seedError(i, snap.Records[i].ID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("import %s: %w", c.key, err)
	}
	c.log.InfoContext(ctx, "import completed", "records", len(snap.Records))
	return nil
}
