package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TouhouGleaners/danmaku-sender/internal/model"
	logx "github.com/TouhouGleaners/danmaku-sender/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// migrateMu serializes table creation when several stores open the same file
// in one process (one sender plus one monitor is the normal shape).
var migrateMu sync.Mutex

const defaultQueryLimit = 200

// Store is the sqlite-backed lifecycle store. Safe for concurrent callers:
// every operation is a self-contained statement/transaction against the
// single file.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the store at cfg.Path.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("history: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordAccepted inserts a freshly accepted submission with status PENDING.
// Idempotent: a dmid already on file is a no-op, so duplicate callbacks cannot
// create duplicate rows. An empty dmid is skipped (nothing to key on).
func (s *Store) RecordAccepted(ctx context.Context, target model.VideoTarget, dm model.Danmaku, visible bool) error {
	if dm.DMID == "" {
		s.log.Warn("record skipped: empty dmid", logx.String("content", dm.Msg))
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_danmakus
		   (dmid, cid, bvid, content, progress, mode, fontsize, color, send_time, is_visible, status)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		dm.DMID, target.CID, target.BVID, dm.Msg, dm.Progress, dm.Mode, dm.Fontsize, dm.Color,
		time.Now().UnixMilli(), boolInt(visible), StatusPending,
	)
	if err != nil {
		s.log.Error("record accepted failed", logx.String("dmid", dm.DMID), logx.Err(err))
	}
	return err
}

// Verify transitions the given dmids from PENDING to VERIFIED and returns the
// number of rows actually transitioned. Terminal rows are untouched.
func (s *Store) Verify(ctx context.Context, dmids []string) (int64, error) {
	if len(dmids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(dmids)+2)
	args = append(args, StatusVerified)
	for _, id := range dmids {
		args = append(args, id)
	}
	args = append(args, StatusPending)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sent_danmakus SET status = ?
		  WHERE dmid IN (`+placeholders(len(dmids))+`) AND status = ?`, args...)
	if err != nil {
		s.log.Error("verify failed", logx.Int("dmids", len(dmids)), logx.Err(err))
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkLost transitions every PENDING row under cid whose dmid is not in the
// live set to LOST. An empty live set marks every PENDING row lost: the
// listing was authoritative and contained none of them.
func (s *Store) MarkLost(ctx context.Context, cid int64, liveDMIDs []string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if len(liveDMIDs) > 0 {
		args := make([]any, 0, len(liveDMIDs)+3)
		args = append(args, StatusLost, cid, StatusPending)
		for _, id := range liveDMIDs {
			args = append(args, id)
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE sent_danmakus SET status = ?
			  WHERE cid = ? AND status = ? AND dmid NOT IN (`+placeholders(len(liveDMIDs))+`)`, args...)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE sent_danmakus SET status = ? WHERE cid = ? AND status = ?`,
			StatusLost, cid, StatusPending)
	}
	if err != nil {
		s.log.Error("mark lost failed", logx.Int64("cid", cid), logx.Err(err))
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Warn("marked records lost", logx.Int64("cid", cid), logx.Int64("count", n))
	}
	return n, nil
}

// CountMatching counts rows matching the target plus the item fingerprint
// with status PENDING or VERIFIED. Used by the sender's skip-already-sent
// check on reruns; LOST rows do not count, so a lost item gets resent.
func (s *Store) CountMatching(ctx context.Context, target model.VideoTarget, fp model.Fingerprint) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sent_danmakus
		  WHERE cid = ? AND bvid = ? AND content = ? AND progress = ?
		    AND mode = ? AND fontsize = ? AND color = ?
		    AND status IN (?, ?)`,
		target.CID, target.BVID, fp.Msg, fp.Progress, fp.Mode, fp.Fontsize, fp.Color,
		StatusPending, StatusVerified,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// GetStats returns the lifecycle totals for one part.
func (s *Store) GetStats(ctx context.Context, cid int64) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		   FROM sent_danmakus WHERE cid = ?`,
		StatusVerified, StatusLost, cid,
	).Scan(&st.Total, &st.Verified, &st.Lost)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Query returns records for audit browsing, newest first. Not used by the
// send loop.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	q := `SELECT dmid, cid, bvid, content, progress, mode, fontsize, color, send_time, is_visible, status
	        FROM sent_danmakus`
	var conds []string
	var args []any
	if f.Keyword != "" {
		conds = append(conds, "content LIKE ?")
		args = append(args, "%"+f.Keyword+"%")
	}
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, *f.Status)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY send_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			sentMS  int64
			visible int
		)
		if err := rows.Scan(&r.DMID, &r.CID, &r.BVID, &r.Content, &r.Progress,
			&r.Mode, &r.Fontsize, &r.Color, &sentMS, &visible, &r.Status); err != nil {
			return nil, err
		}
		r.SentAt = time.UnixMilli(sentMS)
		r.Visible = visible != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
