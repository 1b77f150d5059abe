package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/gioe/aiq/internal/session"
)

// resultRepo implements ResultRepo on the ent SQL driver.
type resultRepo struct {
	drv *entsql.Driver
	seq *resultSequence
}

var resultColumns = []string{
	"id", "sequence", "examinee_id", "pool_version", "seed", "theta", "se",
	"score", "score_lower", "score_upper", "confidence", "items", "stop_reason",
	"coverage", "finished_at",
}

func (r *resultRepo) SaveResult(ctx context.Context, rec SessionRecord) (err error) {
	res := rec.Result
	if res.SessionID == "" {
		return errors.New("save result: empty session id")
	}
	coverage, err := json.Marshal(res.Coverage)
	if err != nil {
		return fmt.Errorf("marshal coverage: %w", err)
	}
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	seq, err := r.seq.Next(ctx)
	if err != nil {
		return err
	}

	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	q, args := builder().Insert(SessionResultsTable.Name).
		Columns(resultColumns...).
		Values(res.SessionID, seq, rec.ExamineeID, res.PoolVersion, int64(rec.Seed),
			res.Theta, res.SE, res.Score.Value, res.Score.Lower, res.Score.Upper, res.Score.Level,
			res.ItemsAdministered, string(res.StopReason), string(coverage), finished.UnixMilli()).
		Query()
	if err = tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("save result %s: %w", res.SessionID, err)
	}

	if len(res.Responses) > 0 {
		ins := builder().Insert(ResponseRecordsTable.Name).
			Columns("session_id", "sequence", "item_id", "category", "correct", "theta", "se", "fallback")
		itemIDs := make([]any, 0, len(res.Responses))
		for _, rr := range res.Responses {
			ins.Values(res.SessionID, rr.Sequence, rr.ItemID, rr.Category, rr.Correct, rr.Theta, rr.SE, rr.Fallback)
			itemIDs = append(itemIDs, rr.ItemID)
		}
		q, args = ins.Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("save responses: %w", err)
		}

		// Exposure is charged only when the snapshot is stored; sessions run
		// from a file pool have nothing to update.
		var id int
		id, err = snapshotID(ctx, tx, res.PoolVersion)
		switch {
		case errors.Is(err, ErrNotFound):
			err = nil
		case err != nil:
			return err
		default:
			q, args = builder().Update(PoolItemsTable.Name).
				Add("exposure_count", 1).
				Where(entsql.And(
					entsql.EQ("snapshot_id", id),
					entsql.In("item_id", itemIDs...),
				)).
				Query()
			if err = tx.Exec(ctx, q, args, nil); err != nil {
				return fmt.Errorf("update exposure: %w", err)
			}
			q, args = builder().Update(PoolSnapshotsTable.Name).
				Add("sessions_served", 1).
				Where(entsql.EQ("id", id)).
				Query()
			if err = tx.Exec(ctx, q, args, nil); err != nil {
				return fmt.Errorf("update sessions served: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

func (r *resultRepo) ListResults(ctx context.Context, opts QueryOpts) ([]ResultSummary, error) {
	sel := builder().Select(resultColumns...).
		From(builder().Table(SessionResultsTable.Name)).
		OrderBy(entsql.Desc("sequence"))
	var preds []*entsql.Predicate
	if opts.ExamineeID != "" {
		preds = append(preds, entsql.EQ("examinee_id", opts.ExamineeID))
	}
	if opts.After > 0 {
		preds = append(preds, entsql.GT("sequence", opts.After))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	q, args := sel.Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []ResultSummary
	for rows.Next() {
		var (
			s        ResultSummary
			seed     int64
			coverage string
			finished int64
		)
		if err := rows.Scan(&s.SessionID, &s.Sequence, &s.ExamineeID, &s.PoolVersion, &seed,
			&s.Theta, &s.SE, &s.Score, &s.Lower, &s.Upper, &s.Confidence, &s.Items, &s.StopReason,
			&coverage, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		s.Seed = uint64(seed)
		s.FinishedAt = time.UnixMilli(finished)
		if err := json.Unmarshal([]byte(coverage), &s.Coverage); err != nil {
			return nil, fmt.Errorf("unmarshal coverage of %s: %w", s.SessionID, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

func (r *resultRepo) Responses(ctx context.Context, sessionID string) ([]session.ResponseRecord, error) {
	q, args := builder().Select("sequence", "item_id", "category", "correct", "theta", "se", "fallback").
		From(builder().Table(ResponseRecordsTable.Name)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("sequence").
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []session.ResponseRecord
	for rows.Next() {
		var rr session.ResponseRecord
		if err := rows.Scan(&rr.Sequence, &rr.ItemID, &rr.Category, &rr.Correct, &rr.Theta, &rr.SE, &rr.Fallback); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("responses of %s: %w", sessionID, ErrNotFound)
	}
	return out, nil
}

func (r *resultRepo) PriorTheta(ctx context.Context, examineeID string) (float64, bool, error) {
	if examineeID == "" {
		return 0, false, nil
	}
	q, args := builder().Select("theta").
		From(builder().Table(SessionResultsTable.Name)).
		Where(entsql.EQ("examinee_id", examineeID)).
		OrderBy(entsql.Desc("sequence")).
		Limit(1).
		Query()
	var theta float64
	err := queryOne(ctx, r.drv, q, args, &theta)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("query prior theta: %w", err)
	}
	return theta, true, nil
}
