package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"golang.org/x/mod/semver"

	"github.com/gioe/aiq/internal/itempool"
)

// poolRepo implements PoolRepo on the ent SQL driver.
type poolRepo struct {
	drv *entsql.Driver
}

func (r *poolRepo) SaveSnapshot(ctx context.Context, snap itempool.Snapshot) (err error) {
	if !semver.IsValid(snap.Version) {
		return fmt.Errorf("%w: %q", itempool.ErrInvalidVersion, snap.Version)
	}

	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	q, args := builder().Insert(PoolSnapshotsTable.Name).
		Columns("version", "sessions_served", "item_count", "created_at").
		Values(snap.Version, snap.SessionsServed, len(snap.Items), time.Now().UnixMilli()).
		Query()
	if err = tx.Exec(ctx, q, args, nil); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Version, err)
	}

	id, err := snapshotID(ctx, tx, snap.Version)
	if err != nil {
		return err
	}

	if len(snap.Items) > 0 {
		ins := builder().Insert(PoolItemsTable.Name).
			Columns("snapshot_id", "item_id", "category", "discrimination", "difficulty", "guessing",
				"sample_size", "se_a", "se_b", "se_c", "exposure_count")
		for _, it := range snap.Items {
			c := it.Calibration
			ins.Values(id, it.ID, it.Category, it.Discrimination, it.Difficulty, it.Guessing,
				c.SampleSize, c.DiscriminationSE, c.DifficultySE, c.GuessingSE, it.ExposureCount)
		}
		q, args = ins.Query()
		if err = tx.Exec(ctx, q, args, nil); err != nil {
			return fmt.Errorf("save snapshot items: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (r *poolRepo) LatestSnapshot(ctx context.Context) (itempool.Snapshot, error) {
	infos, err := r.Versions(ctx)
	if err != nil {
		return itempool.Snapshot{}, err
	}
	if len(infos) == 0 {
		return itempool.Snapshot{}, fmt.Errorf("latest snapshot: %w", ErrNotFound)
	}
	return r.Snapshot(ctx, infos[0].Version)
}

func (r *poolRepo) Snapshot(ctx context.Context, version string) (itempool.Snapshot, error) {
	id, err := snapshotID(ctx, r.drv, version)
	if err != nil {
		return itempool.Snapshot{}, err
	}

	snap := itempool.Snapshot{Version: version}
	q, args := builder().Select("sessions_served").
		From(builder().Table(PoolSnapshotsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()
	if err := queryOne(ctx, r.drv, q, args, &snap.SessionsServed); err != nil {
		return itempool.Snapshot{}, fmt.Errorf("query snapshot %s: %w", version, err)
	}

	q, args = builder().Select("item_id", "category", "discrimination", "difficulty", "guessing",
		"sample_size", "se_a", "se_b", "se_c", "exposure_count").
		From(builder().Table(PoolItemsTable.Name)).
		Where(entsql.EQ("snapshot_id", id)).
		OrderBy("item_id").
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return itempool.Snapshot{}, fmt.Errorf("query snapshot items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it itempool.Item
		c := &it.Calibration
		if err := rows.Scan(&it.ID, &it.Category, &it.Discrimination, &it.Difficulty, &it.Guessing,
			&c.SampleSize, &c.DiscriminationSE, &c.DifficultySE, &c.GuessingSE, &it.ExposureCount); err != nil {
			return itempool.Snapshot{}, fmt.Errorf("scan snapshot item: %w", err)
		}
		snap.Items = append(snap.Items, it)
	}
	if err := rows.Err(); err != nil {
		return itempool.Snapshot{}, fmt.Errorf("iterate snapshot items: %w", err)
	}
	return snap, nil
}

func (r *poolRepo) Versions(ctx context.Context) ([]SnapshotInfo, error) {
	q, args := builder().Select("version", "sessions_served", "item_count", "created_at").
		From(builder().Table(PoolSnapshotsTable.Name)).
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var created int64
		if err := rows.Scan(&info.Version, &info.SessionsServed, &info.ItemCount, &created); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		info.CreatedAt = time.UnixMilli(created)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	// Lexical order is wrong for semver (v1.10.0 < v1.9.0), so sort here.
	versions := make([]string, len(out))
	byVersion := make(map[string]SnapshotInfo, len(out))
	for i, info := range out {
		versions[i] = info.Version
		byVersion[info.Version] = info
	}
	semver.Sort(versions)
	for i := range versions {
		out[i] = byVersion[versions[len(versions)-1-i]]
	}
	return out, nil
}

// snapshotID resolves a snapshot version to its row id.
func snapshotID(ctx context.Context, q dialect.ExecQuerier, version string) (int, error) {
	query, args := builder().Select("id").
		From(builder().Table(PoolSnapshotsTable.Name)).
		Where(entsql.EQ("version", version)).
		Query()
	var id int
	if err := queryOne(ctx, q, query, args, &id); err != nil {
		return 0, fmt.Errorf("snapshot %s: %w", version, err)
	}
	return id, nil
}

// queryOne scans the first row of a query into dest, returning ErrNotFound
// when there is none.
func queryOne(ctx context.Context, q dialect.ExecQuerier, query string, args []any, dest ...any) error {
	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}
	return rows.Scan(dest...)
}

// PoolProvider serves the latest stored snapshot to new sessions.
type PoolProvider struct {
	Repo   PoolRepo
	Filter itempool.CalibrationFilter
	Logger *slog.Logger
}

// LoadPool implements itempool.Provider. Items failing the calibration filter
// are skipped and logged.
func (p *PoolProvider) LoadPool(ctx context.Context) (*itempool.Pool, error) {
	snap, err := p.Repo.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	admitted, rejected := itempool.Screen(snap.Items, p.Filter)
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, rej := range rejected {
		logger.Warn("item refused", "version", snap.Version, "error", rej)
	}
	snap.Items = admitted
	return itempool.NewPool(snap)
}
