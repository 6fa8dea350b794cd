package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order at startup.  Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS principals (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NULL UNIQUE,
		phone         VARCHAR(32)  NULL UNIQUE,
		name          VARCHAR(255) NULL,
		role          VARCHAR(32)  NOT NULL DEFAULT 'customer',
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		is_verified   TINYINT(1)   NOT NULL DEFAULT 0,
		password_hash VARCHAR(255) NULL,
		created_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id           CHAR(36)        NOT NULL PRIMARY KEY,
		principal_id BIGINT UNSIGNED NOT NULL,
		token_hash   CHAR(64)        NOT NULL UNIQUE,
		device_info  VARCHAR(255)    NOT NULL DEFAULT '',
		expires_at   DATETIME        NOT NULL,
		created_at   DATETIME        NOT NULL,
		INDEX idx_sessions_principal (principal_id),
		INDEX idx_sessions_expires (expires_at),
		CONSTRAINT fk_sessions_principal FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS otp_challenges (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		identifier    VARCHAR(255) NOT NULL,
		code_hash     CHAR(64)     NOT NULL,
		channel       VARCHAR(16)  NOT NULL,
		purpose       VARCHAR(32)  NOT NULL,
		expires_at    DATETIME     NOT NULL,
		used          TINYINT(1)   NOT NULL DEFAULT 0,
		attempt_count INT          NOT NULL DEFAULT 0,
		max_attempts  INT          NOT NULL,
		created_at    DATETIME     NOT NULL,
		INDEX idx_otp_identifier (identifier),
		INDEX idx_otp_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS coupons (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		code            VARCHAR(32)  NOT NULL UNIQUE,
		description     VARCHAR(255) NOT NULL DEFAULT '',
		discount_type   VARCHAR(16)  NOT NULL,
		value           BIGINT       NOT NULL,
		min_order_cents BIGINT       NOT NULL DEFAULT 0,
		usage_limit     INT          NOT NULL DEFAULT 0,
		used_count      INT          NOT NULL DEFAULT 0,
		is_active       TINYINT(1)   NOT NULL DEFAULT 1,
		starts_at       DATETIME     NULL,
		expires_at      DATETIME     NULL,
		created_at      DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables the service needs if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
