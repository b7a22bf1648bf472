package storage

// sqlite.go: histórico de resoluciones y suscriptores de Telegram.
//
//   - `passes`: una fila por pasada con algún mercado expirado. Las pasadas
//     vacías no se guardan: el quick trigger corre cada 10s y casi siempre
//     termina sin nada que resolver.
//   - `resolutions`: una fila por mercado procesado en la pasada.
//   - `subscribers`: chats de Telegram suscritos con /start.
//   - Prune automático al arrancar: pasadas y resoluciones > 30d.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS passes (
    id           TEXT PRIMARY KEY,
    trigger_kind TEXT    NOT NULL,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER NOT NULL,
    scanned      INTEGER NOT NULL DEFAULT 0,
    resolved     INTEGER NOT NULL DEFAULT 0,
    postponed    INTEGER NOT NULL DEFAULT 0,
    failed       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS resolutions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    pass_id          TEXT    NOT NULL REFERENCES passes(id) ON DELETE CASCADE,
    market_id        INTEGER NOT NULL,
    title            TEXT    NOT NULL DEFAULT '',
    status           TEXT    NOT NULL,
    winning_side     INTEGER,
    final_price      TEXT,
    retry_count      INTEGER NOT NULL DEFAULT 0,
    already_resolved INTEGER NOT NULL DEFAULT 0,
    winner_count     INTEGER NOT NULL DEFAULT 0,
    error            TEXT    NOT NULL DEFAULT '',
    recorded_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS subscribers (
    chat_id       INTEGER PRIMARY KEY,
    user_id       TEXT    NOT NULL DEFAULT '',
    betting       INTEGER NOT NULL DEFAULT 1,
    subscribed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_passes_started ON passes(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_res_recorded   ON resolutions(recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_res_market     ON resolutions(market_id);
`

const retention = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.ResultStorage y ports.SubscriberStorage
// usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// SavePass persiste el resumen de la pasada y un registro por mercado.
func (s *SQLiteStorage) SavePass(ctx context.Context, report domain.PassReport) error {
	if len(report.Results) == 0 {
		return nil
	}

	id := report.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	started := report.StartedAt
	if started.IsZero() {
		started = finished
	}
	resolved, postponed, failed := report.Counts()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePass: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO passes (id, trigger_kind, started_at, finished_at, scanned, resolved, postponed, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), string(report.Trigger), toMillis(started), toMillis(finished),
		report.Scanned, resolved, postponed, failed,
	); err != nil {
		return fmt.Errorf("storage.SavePass: insert pass: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO resolutions
			(pass_id, market_id, title, status, winning_side, final_price,
			 retry_count, already_resolved, winner_count, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SavePass: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range report.Results {
		var side, price any
		if r.WinningSide != nil {
			side = int(*r.WinningSide)
		}
		if r.FinalPrice != nil {
			price = r.FinalPrice.String()
		}
		if _, err := stmt.ExecContext(ctx,
			id.String(),
			int64(r.MarketID),
			r.Title,
			string(r.Status),
			side,
			price,
			r.RetryCount,
			boolToInt(r.AlreadyResolved),
			r.WinnerCount,
			r.Error,
			toMillis(finished),
		); err != nil {
			return fmt.Errorf("storage.SavePass: insert market %s: %w", r.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePass: commit: %w", err)
	}
	return nil
}

// GetHistory devuelve los resultados registrados en [from, to], más recientes primero.
func (s *SQLiteStorage) GetHistory(ctx context.Context, from, to time.Time) ([]domain.ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.pass_id, p.trigger_kind, r.recorded_at, r.market_id, r.title, r.status,
		       r.winning_side, r.final_price, r.retry_count, r.already_resolved,
		       r.winner_count, r.error
		FROM resolutions r
		JOIN passes p ON p.id = r.pass_id
		WHERE r.recorded_at BETWEEN ? AND ?
		ORDER BY r.recorded_at DESC, r.id DESC
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("storage.GetHistory: query: %w", err)
	}
	defer rows.Close()

	var records []domain.ResolutionRecord
	for rows.Next() {
		var (
			rec       domain.ResolutionRecord
			passID    string
			trigger   string
			recorded  int64
			marketID  int64
			status    string
			side      sql.NullInt64
			price     sql.NullString
			alreadyRs int
		)
		if err := rows.Scan(
			&passID, &trigger, &recorded, &marketID,
			&rec.Result.Title, &status, &side, &price,
			&rec.Result.RetryCount, &alreadyRs, &rec.Result.WinnerCount, &rec.Result.Error,
		); err != nil {
			return nil, fmt.Errorf("storage.GetHistory: scan row: %w", err)
		}

		rec.PassID, _ = uuid.Parse(passID)
		rec.Trigger = domain.Trigger(trigger)
		rec.RecordedAt = fromMillis(recorded)
		rec.Result.MarketID = domain.MarketID(marketID)
		rec.Result.Status = domain.ResolutionStatus(status)
		rec.Result.AlreadyResolved = alreadyRs == 1
		if side.Valid {
			sd := domain.Side(side.Int64)
			rec.Result.WinningSide = &sd
		}
		if price.Valid {
			if p, err := parsePrice(price.String); err == nil {
				rec.Result.FinalPrice = &p
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- suscriptores ---

// AddSubscriber crea o reactiva la suscripción del chat.
func (s *SQLiteStorage) AddSubscriber(ctx context.Context, sub domain.Subscriber) error {
	at := sub.SubscribedAt
	if at.IsZero() {
		at = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (chat_id, user_id, betting, subscribed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			user_id = excluded.user_id,
			betting = excluded.betting
	`, sub.ChatID, sub.UserID, boolToInt(sub.Betting), toMillis(at)); err != nil {
		return fmt.Errorf("storage.AddSubscriber %d: %w", sub.ChatID, err)
	}
	return nil
}

// RemoveSubscriber borra la suscripción del chat. No falla si no existía.
func (s *SQLiteStorage) RemoveSubscriber(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("storage.RemoveSubscriber %d: %w", chatID, err)
	}
	return nil
}

// ListSubscribers devuelve todos los suscriptores por antigüedad.
func (s *SQLiteStorage) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, user_id, betting, subscribed_at FROM subscribers ORDER BY subscribed_at, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSubscribers: query: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var sub domain.Subscriber
		var betting int
		var at int64
		if err := rows.Scan(&sub.ChatID, &sub.UserID, &betting, &at); err != nil {
			return nil, fmt.Errorf("storage.ListSubscribers: scan row: %w", err)
		}
		sub.Betting = betting == 1
		sub.SubscribedAt = fromMillis(at)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// --- helpers internos ---

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := toMillis(s.now().Add(-retention))
	s.db.ExecContext(ctx, `DELETE FROM resolutions WHERE recorded_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM passes WHERE started_at < ?`, cutoff)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parsePrice(s string) (domain.Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return domain.Price{}, err
	}
	return domain.NewPrice(d), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
