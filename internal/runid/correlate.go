package runid

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/schedule"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// NewCorrelationToken returns a unique token to embed in dispatch inputs.
func NewCorrelationToken() string {
	return ulid.Make().String()
}

// Correlate narrows ids to the runs whose name or display title carries
// token. The workflow must surface the token, typically through
// `run-name: ${{ inputs.<key> }}`. When nothing matches, ids is returned
// unchanged so a workflow without run-name still gets tracked.
func (i *Identifier) Correlate(ctx context.Context, ids []types.RunID, token string) ([]types.RunID, error) {
	if token == "" || len(ids) == 0 {
		return ids, nil
	}

	var matched []types.RunID
	for _, id := range ids {
		rec, err := schedule.Retry(ctx, i.transient, ghapi.IsRetryable,
			func(int, error) { i.metrics.TransientRetry(ctx, "correlate") },
			func(ctx context.Context) (types.RunRecord, error) { return i.api.GetRun(ctx, id) })
		if err != nil {
			return nil, fmt.Errorf("correlating run %s: %w", id, err)
		}
		if strings.Contains(rec.DisplayTitle, token) || strings.Contains(rec.Name, token) {
			matched = append(matched, id)
		}
	}

	if len(matched) == 0 {
		i.logger.Warn("no run carries the correlation token; keeping all new runs",
			"workflow", i.workflow, "token", token, "runIDs", ids)
		return ids, nil
	}
	if len(matched) < len(ids) {
		i.logger.Info("correlation token disambiguated concurrent runs",
			"workflow", i.workflow, "kept", matched, "candidates", ids)
	}
	return matched, nil
}
