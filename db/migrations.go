package db

import (
	"database/sql"
	"log"
)

const (
	// Statuses: local and federated posts in one table, tagged by `local`
	sqlCreateStatusesTable = `CREATE TABLE IF NOT EXISTS statuses (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		local INTEGER DEFAULT 0,
		object_uri TEXT UNIQUE NOT NULL,
		content TEXT,
		content_warning TEXT,
		sensitive INTEGER DEFAULT 0,
		language TEXT,
		visibility TEXT NOT NULL DEFAULT 'public',
		in_reply_to_uri TEXT,
		mentions TEXT NOT NULL DEFAULT '[]',
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateStatusesIndices = `
		CREATE INDEX IF NOT EXISTS idx_statuses_account_id ON statuses(account_id);
		CREATE INDEX IF NOT EXISTS idx_statuses_visibility ON statuses(visibility);
		CREATE INDEX IF NOT EXISTS idx_statuses_created_at ON statuses(created_at DESC);
	`

	// Remote accounts cache table
	sqlCreateRemoteAccountsTable = `CREATE TABLE IF NOT EXISTS remote_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		inbox_uri TEXT NOT NULL,
		outbox_uri TEXT,
		public_key_pem TEXT NOT NULL,
		avatar_url TEXT,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateRemoteAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_actor_uri ON remote_accounts(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_domain ON remote_accounts(domain);
	`

	// Follow relationships table
	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		target_account_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		accepted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, target_account_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_account_id ON follows(account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_target_account_id ON follows(target_account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
	`

	// Activities log table (deduplication & debugging)
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		processed INTEGER DEFAULT 0,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_uri ON activities(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
	`

	// Delivery queue table
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// RunMigrations creates the federation schema. All statements are
// idempotent, so running them on every start is safe.
func (db *DB) RunMigrations() error {
	log.Println("Running federation migrations...")

	migrations := []struct {
		name string
		sql  string
	}{
		{"statuses table", sqlCreateStatusesTable},
		{"statuses indices", sqlCreateStatusesIndices},
		{"remote_accounts table", sqlCreateRemoteAccountsTable},
		{"remote_accounts indices", sqlCreateRemoteAccountsIndices},
		{"follows table", sqlCreateFollowsTable},
		{"follows indices", sqlCreateFollowsIndices},
		{"activities table", sqlCreateActivitiesTable},
		{"activities indices", sqlCreateActivitiesIndices},
		{"delivery_queue table", sqlCreateDeliveryQueueTable},
		{"delivery_queue indices", sqlCreateDeliveryQueueIndices},
	}

	for _, m := range migrations {
		if err := db.wrapTransaction(func(tx *sql.Tx) error {
			_, err := tx.Exec(m.sql)
			return err
		}); err != nil {
			log.Printf("Migration %s failed: %v", m.name, err)
			return err
		}
	}

	log.Println("Federation migrations complete")
	return nil
}
