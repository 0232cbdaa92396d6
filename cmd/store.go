package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/review"
	"github.com/sells-group/billscan/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadCases hydrates a CaseService from persisted cases so queue queries and
// transitions see the full history.
func loadCases(ctx context.Context, st store.Store) (*review.CaseService, error) {
	cases, err := st.ListCases(ctx, store.CaseFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "load cases")
	}

	svc := review.NewCaseService()
	for _, c := range cases {
		_, audit, err := st.GetCase(ctx, c.CaseID)
		if err != nil {
			return nil, eris.Wrapf(err, "load case %s", c.CaseID)
		}
		svc.Restore(c, audit)
	}
	return svc, nil
}
