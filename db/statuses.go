package db

import (
	"database/sql"
	"encoding/json"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertStatusIfAbsent = `INSERT INTO statuses(id, account_id, local, object_uri, content, content_warning, sensitive, language, visibility, in_reply_to_uri, mentions, attachments, created_at)
                        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                        ON CONFLICT(object_uri) DO NOTHING`

	sqlSelectStatusFields = `SELECT id, account_id, local, object_uri, content, COALESCE(content_warning, ''), sensitive, COALESCE(language, ''), visibility, COALESCE(in_reply_to_uri, ''), mentions, attachments, created_at FROM statuses`

	sqlSelectStatusById        = sqlSelectStatusFields + ` WHERE id = ?`
	sqlSelectStatusByObjectURI = sqlSelectStatusFields + ` WHERE object_uri = ?`
	sqlSelectStatusesByAccount = sqlSelectStatusFields + ` WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`
	sqlSelectPublicStatuses    = sqlSelectStatusFields + ` WHERE visibility = 'public' ORDER BY created_at DESC LIMIT ?`
	sqlSelectHomeStatuses      = sqlSelectStatusFields + ` WHERE account_id = ?
                        OR account_id IN (SELECT target_account_id FROM follows WHERE account_id = ? AND accepted = 1)
                        ORDER BY created_at DESC LIMIT ?`

	sqlSelectPublicStatusesByAccount = sqlSelectStatusFields + ` WHERE account_id = ? AND visibility = 'public' ORDER BY created_at DESC LIMIT ? OFFSET ?`

	sqlCountStatusesByAccount       = `SELECT COUNT(*) FROM statuses WHERE account_id = ?`
	sqlCountPublicStatusesByAccount = `SELECT COUNT(*) FROM statuses WHERE account_id = ? AND visibility = 'public'`
	sqlDeleteStatusByObjectURI = `DELETE FROM statuses WHERE object_uri = ?`
)

// CreateStatusIfAbsent inserts the status unless one with the same
// object URI already exists, then returns the stored row. The conflict
// clause makes concurrent ingestion of the same activity id safe.
func (db *DB) CreateStatusIfAbsent(s *domain.Status) (error, *domain.Status) {
	mentions, err := json.Marshal(s.Mentions)
	if err != nil {
		return err, nil
	}
	attachments, err := json.Marshal(s.Attachments)
	if err != nil {
		return err, nil
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertStatusIfAbsent,
			s.Id.String(),
			s.AccountId.String(),
			s.Local,
			s.ObjectURI,
			s.Content,
			s.ContentWarning,
			s.Sensitive,
			s.Language,
			string(s.Visibility),
			s.InReplyToURI,
			string(mentions),
			string(attachments),
			s.CreatedAt,
		)
		return err
	})
	if err != nil {
		return err, nil
	}

	return db.ReadStatusByObjectURI(s.ObjectURI)
}

func (db *DB) ReadStatusById(id uuid.UUID) (error, *domain.Status) {
	return scanStatus(db.db.QueryRow(sqlSelectStatusById, id.String()))
}

func (db *DB) ReadStatusByObjectURI(uri string) (error, *domain.Status) {
	return scanStatus(db.db.QueryRow(sqlSelectStatusByObjectURI, uri))
}

func (db *DB) ReadStatusesByAccountId(accountId uuid.UUID, limit int) (error, *[]domain.Status) {
	return db.queryStatuses(sqlSelectStatusesByAccount, accountId.String(), limit)
}

// ReadPublicStatuses backs the public timeline. Unlisted statuses are
// readable but not listed there.
func (db *DB) ReadPublicStatuses(limit int) (error, *[]domain.Status) {
	return db.queryStatuses(sqlSelectPublicStatuses, limit)
}

// ReadHomeStatuses returns candidate statuses for an account's home
// feed: own posts plus posts of accepted followees. Visibility is
// enforced by the caller.
func (db *DB) ReadHomeStatuses(accountId uuid.UUID, limit int) (error, *[]domain.Status) {
	return db.queryStatuses(sqlSelectHomeStatuses, accountId.String(), accountId.String(), limit)
}

// ReadPublicStatusesByAccountId pages through an account's public
// statuses, newest first. Backs the ActivityPub outbox.
func (db *DB) ReadPublicStatusesByAccountId(accountId uuid.UUID, limit, offset int) (error, *[]domain.Status) {
	return db.queryStatuses(sqlSelectPublicStatusesByAccount, accountId.String(), limit, offset)
}

func (db *DB) CountStatusesByAccountId(accountId uuid.UUID) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountStatusesByAccount, accountId.String()).Scan(&count)
	return err, count
}

func (db *DB) CountPublicStatusesByAccountId(accountId uuid.UUID) (error, int) {
	var count int
	err := db.db.QueryRow(sqlCountPublicStatusesByAccount, accountId.String()).Scan(&count)
	return err, count
}

func (db *DB) DeleteStatusByObjectURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteStatusByObjectURI, uri)
		return err
	})
}

func (db *DB) queryStatuses(query string, args ...interface{}) (error, *[]domain.Status) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var statuses []domain.Status
	for rows.Next() {
		var s domain.Status
		var mentions, attachments string
		err := rows.Scan(&s.Id, &s.AccountId, &s.Local, &s.ObjectURI, &s.Content, &s.ContentWarning, &s.Sensitive, &s.Language, &s.Visibility, &s.InReplyToURI, &mentions, &attachments, &s.CreatedAt)
		if err != nil {
			return err, &statuses
		}
		decodeStatusJSON(&s, mentions, attachments)
		statuses = append(statuses, s)
	}
	if err = rows.Err(); err != nil {
		return err, &statuses
	}

	return nil, &statuses
}

func scanStatus(row *sql.Row) (error, *domain.Status) {
	var s domain.Status
	var mentions, attachments string
	err := row.Scan(&s.Id, &s.AccountId, &s.Local, &s.ObjectURI, &s.Content, &s.ContentWarning, &s.Sensitive, &s.Language, &s.Visibility, &s.InReplyToURI, &mentions, &attachments, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	decodeStatusJSON(&s, mentions, attachments)
	return nil, &s
}

func decodeStatusJSON(s *domain.Status, mentions, attachments string) {
	if mentions != "" {
		json.Unmarshal([]byte(mentions), &s.Mentions)
	}
	if attachments != "" {
		json.Unmarshal([]byte(attachments), &s.Attachments)
	}
}
