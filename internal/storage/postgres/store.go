package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"activityScope/internal/model"
	"activityScope/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	primary_key     TEXT PRIMARY KEY,
	id              BIGINT NOT NULL,
	token_key       TEXT NOT NULL,
	contract        TEXT NOT NULL,
	network         BIGINT NOT NULL,
	token_type      TEXT NOT NULL,
	token_symbol    TEXT NOT NULL,
	token_name      TEXT NOT NULL,
	token_decimals  INT NOT NULL,
	name            TEXT NOT NULL,
	event_name      TEXT NOT NULL,
	block_number    BIGINT NOT NULL,
	tx_id           TEXT NOT NULL,
	tx_index        BIGINT NOT NULL,
	log_index       BIGINT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	token_values    JSONB NOT NULL,
	card_values     JSONB NOT NULL,
	view_html       TEXT NOT NULL,
	view_style      TEXT NOT NULL,
	item_view_html  TEXT NOT NULL,
	item_view_style TEXT NOT NULL,
	is_base_card    BOOLEAN NOT NULL,
	state           INT NOT NULL,
	token_network   BIGINT NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS activities_block_idx ON activities (block_number DESC);
CREATE TABLE IF NOT EXISTS transactions (
	network      BIGINT NOT NULL,
	tx_id        TEXT NOT NULL,
	block_number BIGINT NOT NULL,
	record       JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (network, tx_id)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const activityColumns = `primary_key, id, token_key, contract, network, token_type, token_symbol, token_name,
	token_decimals, name, event_name, block_number, tx_id, tx_index, log_index, ts,
	token_values, card_values, view_html, view_style, item_view_html, item_view_style, is_base_card, state, token_network`

// Store provides Postgres persistence for activities, transactions and sync checkpoints.
// It satisfies storage.ActivityBackend and storage.TransactionSink.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.ActivityBackend    = (*Store)(nil)
	_ storage.TransactionSink    = (*Store)(nil)
	_ storage.ConditionalBackend = (*Store)(nil)
)

// NewStore connects a pool to dsn.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables used by the store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (model.Activity, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE primary_key=$1`, key)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Activity{}, false, nil
		}
		return model.Activity{}, false, err
	}
	return activity, true, nil
}

// Upsert inserts or overwrites activities by primary key.
func (s *Store) Upsert(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range activities {
		args, err := activityArgs(a)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO activities (`+activityColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
			ON CONFLICT (primary_key)
			DO UPDATE SET
				id = EXCLUDED.id,
				token_key = EXCLUDED.token_key,
				contract = EXCLUDED.contract,
				network = EXCLUDED.network,
				token_type = EXCLUDED.token_type,
				token_symbol = EXCLUDED.token_symbol,
				token_name = EXCLUDED.token_name,
				token_decimals = EXCLUDED.token_decimals,
				name = EXCLUDED.name,
				ts = EXCLUDED.ts,
				token_values = EXCLUDED.token_values,
				card_values = EXCLUDED.card_values,
				view_html = EXCLUDED.view_html,
				view_style = EXCLUDED.view_style,
				item_view_html = EXCLUDED.item_view_html,
				item_view_style = EXCLUDED.item_view_style,
				is_base_card = EXCLUDED.is_base_card,
				state = EXCLUDED.state,
				token_network = EXCLUDED.token_network,
				updated_at = now()
		`, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range activities {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ReplaceValues(ctx context.Context, key string, values model.ActivityValues) error {
	tokenValues, err := json.Marshal(values.Token)
	if err != nil {
		return fmt.Errorf("marshal token values: %w", err)
	}
	cardValues, err := json.Marshal(values.Card)
	if err != nil {
		return fmt.Errorf("marshal card values: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE activities SET token_values=$2, card_values=$3, updated_at=now()
		WHERE primary_key=$1
	`, key, tokenValues, cardValues)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrActivityNotFound
	}
	return nil
}

// SwapValues replaces the attribute maps inside a transaction only if the stored maps equal expected
// and differ from next.
func (s *Store) SwapValues(ctx context.Context, key string, expected, next model.ActivityValues) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback(ctx)

	var tokenRaw, cardRaw []byte
	row := tx.QueryRow(ctx, `SELECT token_values, card_values FROM activities WHERE primary_key=$1 FOR UPDATE`, key)
	if err := row.Scan(&tokenRaw, &cardRaw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, storage.ErrActivityNotFound
		}
		return false, err
	}
	var current model.ActivityValues
	if err := json.Unmarshal(tokenRaw, &current.Token); err != nil {
		return false, fmt.Errorf("decode token values %s: %w", key, err)
	}
	if err := json.Unmarshal(cardRaw, &current.Card); err != nil {
		return false, fmt.Errorf("decode card values %s: %w", key, err)
	}
	if !current.Equal(expected) || current.Equal(next) {
		return false, nil
	}

	tokenValues, err := json.Marshal(next.Token)
	if err != nil {
		return false, fmt.Errorf("marshal token values: %w", err)
	}
	cardValues, err := json.Marshal(next.Card)
	if err != nil {
		return false, fmt.Errorf("marshal card values: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE activities SET token_values=$2, card_values=$3, updated_at=now()
		WHERE primary_key=$1
	`, key, tokenValues, cardValues); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit swap: %w", err)
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, filter model.ActivityFilter) ([]model.Activity, error) {
	contract := ""
	if filter.Contract != nil {
		contract = filter.Contract.Hex()
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE ($1 = '' OR contract = $1) AND ($2 = '' OR token_key = $2)
		ORDER BY block_number DESC, tx_index DESC, log_index DESC, primary_key
	`, contract, filter.TokenKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM activities`)
	return err
}

// activityArgs lists the column values of a in activityColumns order.
func activityArgs(a model.Activity) ([]any, error) {
	tokenValues, err := json.Marshal(a.Values.Token)
	if err != nil {
		return nil, fmt.Errorf("marshal token values %s: %w", a.PrimaryKey(), err)
	}
	cardValues, err := json.Marshal(a.Values.Card)
	if err != nil {
		return nil, fmt.Errorf("marshal card values %s: %w", a.PrimaryKey(), err)
	}
	return []any{
		a.PrimaryKey(),
		a.ID,
		a.Token.PrimaryKey(),
		a.Token.Contract.Hex(),
		int64(a.Network),
		string(a.Token.Type),
		a.Token.Symbol,
		a.Token.Name,
		int(a.Token.Decimals),
		a.Name,
		a.EventName,
		int64(a.BlockNumber),
		a.TransactionID,
		int64(a.TransactionIndex),
		int64(a.LogIndex),
		a.Timestamp.UTC(),
		tokenValues,
		cardValues,
		a.View.HTML,
		a.View.Style,
		a.ItemView.HTML,
		a.ItemView.Style,
		a.IsBaseCard,
		int(a.State),
		int64(a.Token.Network),
	}, nil
}

func scanActivity(row pgx.Row) (model.Activity, error) {
	var (
		a                                 model.Activity
		primaryKey, tokenKey, contract    string
		tokenType                         string
		decimals, state                   int
		network, block, txIndex, logIndex int64
		tokenNetwork                      int64
		ts                                time.Time
		tokenValues, cardValues           []byte
	)
	err := row.Scan(
		&primaryKey, &a.ID, &tokenKey, &contract, &network, &tokenType, &a.Token.Symbol, &a.Token.Name,
		&decimals, &a.Name, &a.EventName, &block, &a.TransactionID, &txIndex, &logIndex, &ts,
		&tokenValues, &cardValues, &a.View.HTML, &a.View.Style, &a.ItemView.HTML, &a.ItemView.Style,
		&a.IsBaseCard, &state, &tokenNetwork,
	)
	if err != nil {
		return model.Activity{}, err
	}

	a.Token.Contract = common.HexToAddress(contract)
	a.Token.Network = uint64(tokenNetwork)
	a.Token.Type = model.TokenType(tokenType)
	a.Token.Decimals = uint8(decimals)
	a.Network = uint64(network)
	a.BlockNumber = uint64(block)
	a.TransactionIndex = uint64(txIndex)
	a.LogIndex = uint64(logIndex)
	a.Timestamp = ts.UTC()
	a.State = model.ActivityState(state)
	if err := json.Unmarshal(tokenValues, &a.Values.Token); err != nil {
		return model.Activity{}, fmt.Errorf("decode token values %s: %w", primaryKey, err)
	}
	if err := json.Unmarshal(cardValues, &a.Values.Card); err != nil {
		return model.Activity{}, fmt.Errorf("decode card values %s: %w", primaryKey, err)
	}
	return a, nil
}

// PutTransactions inserts or updates transaction records by network and id.
func (s *Store) PutTransactions(ctx context.Context, records []model.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal transaction %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO transactions (network, tx_id, block_number, record, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (network, tx_id)
			DO UPDATE SET
				block_number = EXCLUDED.block_number,
				record = EXCLUDED.record,
				updated_at = now()
		`, int64(r.Network), r.ID, int64(r.BlockNumber), payload)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the last processed block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last processed block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

// ResetState removes every checkpoint.
func (s *Store) ResetState(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM indexer_state`)
	return err
}
