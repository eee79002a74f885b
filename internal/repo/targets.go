package repo

import (
	"context"
	"database/sql"
	"fmt"

	"agora/internal/domain"
)

// ResolveTargetTx resolves a polymorphic reference through the closed set
// of governable kinds.
func (r Repo) ResolveTargetTx(ctx context.Context, tx *sql.Tx, ref domain.Ref) (domain.Target, error) {
	switch ref.Kind {
	case domain.KindCommunity:
		c, err := r.GetCommunityTx(ctx, tx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &c, nil
	case domain.KindResource:
		res, err := r.GetResourceTx(ctx, tx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &res, nil
	case domain.KindPermission:
		p, err := r.GetPermissionTx(ctx, tx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &p, nil
	case domain.KindCondition:
		inst, err := r.GetInstanceTx(ctx, tx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &inst, nil
	}
	return nil, fmt.Errorf("unknown target kind %q", ref.Kind)
}
