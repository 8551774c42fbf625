// internal/engine/executor/queries.go
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"crm-assistant/internal/engine/intentparser"
	"crm-assistant/internal/models"
)

// QueryFunc runs one intent's query and returns the records plus a summary.
type QueryFunc func(ctx context.Context, db *sql.DB, e models.Entities, now time.Time, limit int) ([]models.Record, string, error)

var Registry = map[models.IntentTag]QueryFunc{
	models.IntentAccountOwnership:     AccountOwnership,
	models.IntentPipelineSummary:      PipelineSummary,
	models.IntentLateStagePipeline:    LateStagePipeline,
	models.IntentAccountOpportunities: AccountOpportunities,
}

const opportunityColumns = `o.id, o.name, o.account_name, o.stage, o.owner_name, o.amount, o.close_date`

var closedStages = []string{intentparser.StageClosedWon, intentparser.StageClosedLost}

// where accumulates conditions with positional placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

func AccountOwnership(ctx context.Context, db *sql.DB, e models.Entities, _ time.Time, limit int) ([]models.Record, string, error) {
	accounts, ok := e.Get(models.EntityAccounts)
	if !ok {
		return nil, "", fmt.Errorf("%w: accounts", ErrMissingEntity)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, COALESCE(a.owner_name, '')
		FROM accounts a
		WHERE lower(a.name) = ANY($1)
		ORDER BY a.name
		LIMIT $2`, pq.Array(lowered(accounts)), limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.ID, &r.Name, &r.Owner); err != nil {
			return nil, "", err
		}
		r.Account = r.Name
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return records, summarizeOwnership(records, accounts), nil
}

func PipelineSummary(ctx context.Context, db *sql.DB, e models.Entities, now time.Time, limit int) ([]models.Record, string, error) {
	w := &where{}
	if stages, ok := e.Get(models.EntityStages); ok {
		w.add("o.stage = ANY(?)", pq.Array(stages))
	} else {
		w.add("NOT (o.stage = ANY(?))", pq.Array(closedStages))
	}
	return queryDeals(ctx, db, w, e, now, limit)
}

func LateStagePipeline(ctx context.Context, db *sql.DB, e models.Entities, now time.Time, limit int) ([]models.Record, string, error) {
	stages := intentparser.LateStages
	if asked, ok := e.Get(models.EntityStages); ok {
		var late []string
		for _, s := range asked {
			for _, l := range intentparser.LateStages {
				if s == l {
					late = append(late, s)
				}
			}
		}
		if len(late) > 0 {
			stages = late
		}
	}
	w := &where{}
	w.add("o.stage = ANY(?)", pq.Array(stages))

	scoped := e.Clone()
	scoped.Set(models.EntityStages, stages...)
	return queryDeals(ctx, db, w, scoped, now, limit)
}

func AccountOpportunities(ctx context.Context, db *sql.DB, e models.Entities, now time.Time, limit int) ([]models.Record, string, error) {
	if !e.Has(models.EntityAccounts) {
		return nil, "", fmt.Errorf("%w: accounts", ErrMissingEntity)
	}
	w := &where{}
	if stages, ok := e.Get(models.EntityStages); ok {
		w.add("o.stage = ANY(?)", pq.Array(stages))
	}
	return queryDeals(ctx, db, w, e, now, limit)
}

func queryDeals(ctx context.Context, db *sql.DB, w *where, e models.Entities, now time.Time, limit int) ([]models.Record, string, error) {
	if accounts, ok := e.Get(models.EntityAccounts); ok {
		w.add("lower(o.account_name) = ANY(?)", pq.Array(lowered(accounts)))
	}
	if period, ok := ResolvePeriod(e.First(models.EntityDateRange), now); ok {
		w.add("o.close_date >= ?", period.From)
		w.add("o.close_date < ?", period.To)
	}
	w.args = append(w.args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM opportunities o%s
		ORDER BY o.amount DESC NULLS LAST, o.name
		LIMIT $%d`, opportunityColumns, w.String(), len(w.args))

	rows, err := db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		r, err := scanDeal(rows)
		if err != nil {
			return nil, "", err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return records, summarizeDeals(records, describeScope(e)), nil
}

func scanDeal(rows *sql.Rows) (models.Record, error) {
	var (
		r         models.Record
		account   sql.NullString
		stage     sql.NullString
		owner     sql.NullString
		amount    sql.NullFloat64
		closeDate sql.NullTime
	)
	if err := rows.Scan(&r.ID, &r.Name, &account, &stage, &owner, &amount, &closeDate); err != nil {
		return r, err
	}
	r.Account = account.String
	r.Stage = stage.String
	r.Owner = owner.String
	r.Amount = amount.Float64
	if closeDate.Valid {
		r.CloseDate = closeDate.Time.Format("2006-01-02")
	}
	return r, nil
}
