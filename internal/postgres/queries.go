package postgres

const (
	querySchema = `
		CREATE TABLE IF NOT EXISTS board_rooms (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			is_private     BOOLEAN NOT NULL DEFAULT FALSE,
			created_by     TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL,
			is_locked      BOOLEAN NOT NULL DEFAULT FALSE,
			message_limit  INTEGER NOT NULL DEFAULT 100,
			messages       JSONB NOT NULL DEFAULT '[]'::jsonb,
			canvas_state   JSONB NOT NULL DEFAULT '[]'::jsonb,
			last_synced_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS board_rooms_created_at_idx ON board_rooms (created_at);
	`

	queryUpsertRoom = `
		INSERT INTO board_rooms (
			id, name, is_private, created_by, created_at,
			is_locked, message_limit, messages, canvas_state, last_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name           = EXCLUDED.name,
			is_private     = EXCLUDED.is_private,
			is_locked      = EXCLUDED.is_locked,
			message_limit  = EXCLUDED.message_limit,
			messages       = EXCLUDED.messages,
			canvas_state   = EXCLUDED.canvas_state,
			last_synced_at = EXCLUDED.last_synced_at;
	`

	queryLoadRooms = `
		SELECT
			id, name, is_private, created_by, created_at,
			is_locked, message_limit, messages, canvas_state, last_synced_at
		FROM board_rooms
		ORDER BY created_at;
	`

	queryDeleteRoomsOlderThan = `
		DELETE FROM board_rooms
		WHERE created_at < $1 AND NOT (id = ANY($2));
	`
	queryDeleteRoom = `DELETE FROM board_rooms WHERE id = $1;`
)
