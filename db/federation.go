package db

import (
	"database/sql"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

// Remote accounts

const (
	sqlUpsertRemoteAccount = `INSERT INTO remote_accounts(id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, avatar_url, last_fetched_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(actor_uri) DO UPDATE SET
                        username = excluded.username,
                        display_name = excluded.display_name,
                        summary = excluded.summary,
                        inbox_uri = excluded.inbox_uri,
                        outbox_uri = excluded.outbox_uri,
                        public_key_pem = excluded.public_key_pem,
                        avatar_url = excluded.avatar_url,
                        last_fetched_at = excluded.last_fetched_at`

	sqlSelectRemoteAccFields = `SELECT id, username, domain, actor_uri, COALESCE(display_name, ''), COALESCE(summary, ''), inbox_uri, COALESCE(outbox_uri, ''), public_key_pem, COALESCE(avatar_url, ''), last_fetched_at FROM remote_accounts`

	sqlSelectRemoteAccByURI = sqlSelectRemoteAccFields + ` WHERE actor_uri = ?`
	sqlSelectRemoteAccById  = sqlSelectRemoteAccFields + ` WHERE id = ?`
	sqlDeleteRemoteAccount  = `DELETE FROM remote_accounts WHERE id = ?`
)

// SaveRemoteAccount upserts a cached actor keyed by its actor URI. An
// existing row keeps its id.
func (db *DB) SaveRemoteAccount(acc *domain.RemoteAccount) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRemoteAccount,
			acc.Id.String(),
			acc.Username,
			acc.Domain,
			acc.ActorURI,
			acc.DisplayName,
			acc.Summary,
			acc.InboxURI,
			acc.OutboxURI,
			acc.PublicKeyPem,
			acc.AvatarURL,
			acc.LastFetchedAt,
		)
		return err
	})
}

func (db *DB) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	return scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccByURI, uri))
}

func (db *DB) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	return scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccById, id.String()))
}

func (db *DB) DeleteRemoteAccount(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRemoteAccount, id.String())
		return err
	})
}

func scanRemoteAccount(row *sql.Row) (error, *domain.RemoteAccount) {
	var acc domain.RemoteAccount
	err := row.Scan(&acc.Id, &acc.Username, &acc.Domain, &acc.ActorURI, &acc.DisplayName, &acc.Summary, &acc.InboxURI, &acc.OutboxURI, &acc.PublicKeyPem, &acc.AvatarURL, &acc.LastFetchedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &acc
}

// Follows

const (
	sqlInsertFollow = `INSERT INTO follows(id, account_id, target_account_id, uri, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?)
                        ON CONFLICT(account_id, target_account_id) DO NOTHING`
	sqlSelectIsFollowing = `SELECT COUNT(*) FROM follows WHERE account_id = ? AND target_account_id = ? AND accepted = 1`
	sqlSelectFollowers   = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE target_account_id = ? AND accepted = 1`
	sqlSelectFollowing   = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE account_id = ? AND accepted = 1`
	sqlDeleteFollowByURI = `DELETE FROM follows WHERE uri = ?`
	sqlAcceptFollowByURI = `UPDATE follows SET accepted = 1 WHERE uri = ?`
	sqlDeleteFollowsByRemoteAcc = `DELETE FROM follows WHERE account_id = ? OR target_account_id = ?`
)

func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			follow.Id.String(),
			follow.AccountId.String(),
			follow.TargetAccountId.String(),
			follow.URI,
			follow.Accepted,
			follow.CreatedAt,
		)
		return err
	})
}

func (db *DB) IsFollowing(follower, followed uuid.UUID) (error, bool) {
	var count int
	err := db.db.QueryRow(sqlSelectIsFollowing, follower.String(), followed.String()).Scan(&count)
	if err != nil {
		return err, false
	}
	return nil, count > 0
}

// ReadFollowersByAccountId returns the accepted followers of an account.
func (db *DB) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	rows, err := db.db.Query(sqlSelectFollowers, accountId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var f domain.Follow
		err := rows.Scan(&f.Id, &f.AccountId, &f.TargetAccountId, &f.URI, &f.Accepted, &f.CreatedAt)
		if err != nil {
			return err, &follows
		}
		follows = append(follows, f)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}

	return nil, &follows
}

// ReadFollowingByAccountId returns the accepted follows an account has
// sent out.
func (db *DB) ReadFollowingByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	rows, err := db.db.Query(sqlSelectFollowing, accountId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var f domain.Follow
		err := rows.Scan(&f.Id, &f.AccountId, &f.TargetAccountId, &f.URI, &f.Accepted, &f.CreatedAt)
		if err != nil {
			return err, &follows
		}
		follows = append(follows, f)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}

	return nil, &follows
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowsByRemoteAccountId(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowsByRemoteAcc, id.String(), id.String())
		return err
	})
}

// Activities

const (
	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(activity_uri) DO NOTHING`
	sqlSelectActivityByURI   = `SELECT id, activity_uri, activity_type, actor_uri, COALESCE(object_uri, ''), raw_json, processed, local, created_at FROM activities WHERE activity_uri = ?`
	sqlMarkActivityProcessed = `UPDATE activities SET processed = 1 WHERE activity_uri = ?`
)

func (db *DB) CreateActivity(activity *domain.Activity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			activity.Id.String(),
			activity.ActivityURI,
			activity.ActivityType,
			activity.ActorURI,
			activity.ObjectURI,
			activity.RawJSON,
			activity.Processed,
			activity.Local,
			activity.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	var a domain.Activity
	err := db.db.QueryRow(sqlSelectActivityByURI, uri).Scan(&a.Id, &a.ActivityURI, &a.ActivityType, &a.ActorURI, &a.ObjectURI, &a.RawJSON, &a.Processed, &a.Local, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	return nil, &a
}

func (db *DB) MarkActivityProcessed(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkActivityProcessed, uri)
		return err
	})
}

// Delivery queue

const (
	sqlEnqueueDelivery = `INSERT INTO delivery_queue(id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectPending   = `SELECT id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY next_retry_at LIMIT ?`
	sqlUpdateAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery  = `DELETE FROM delivery_queue WHERE id = ?`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlEnqueueDelivery,
			item.Id.String(),
			item.InboxURI,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt,
			item.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectPending, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		err := rows.Scan(&item.Id, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt)
		if err != nil {
			return err, &items
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}

	return nil, &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}
