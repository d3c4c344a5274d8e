package db

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const (
	//Accounts
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts(
                        id uuid NOT NULL PRIMARY KEY,
                        username varchar(100) UNIQUE NOT NULL,
                        display_name varchar(255),
                        summary text,
                        avatar_url text,
                        created_at timestamp default current_timestamp,
                        web_public_key text,
                        web_private_key text
                        )`
	sqlInsertAccount       = `INSERT INTO accounts(id, username, web_public_key, web_private_key, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlSelectAccFields     = `SELECT id, username, COALESCE(display_name, ''), COALESCE(summary, ''), COALESCE(avatar_url, ''), created_at, web_public_key, web_private_key FROM accounts`
	sqlSelectAccById       = sqlSelectAccFields + ` WHERE id = ?`
	sqlSelectAccByUsername = sqlSelectAccFields + ` WHERE username = ?`
)

func GetDB() *DB {
	dbOnce.Do(func() {
		// Open database connection
		db, err := sql.Open("sqlite", util.ResolveFilePath("database.db"))
		if err != nil {
			panic(err)
		}

		// Configure connection pool for concurrent access
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Printf("Warning: Failed to enable WAL mode: %v", err)
		} else {
			log.Printf("Database journal mode: %s", journalMode)
		}

		// Defaults tuned for a concurrent federation workload
		db.Exec("PRAGMA synchronous = NORMAL")
		db.Exec("PRAGMA cache_size = -64000")
		db.Exec("PRAGMA temp_store = MEMORY")
		db.Exec("PRAGMA busy_timeout = 5000")
		db.Exec("PRAGMA foreign_keys = ON")

		dbInstance = &DB{db: db}

		if err := dbInstance.CreateDB(); err != nil {
			panic(err)
		}
	})

	return dbInstance
}

// CreateDB creates the base schema.
func (db *DB) CreateDB() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlCreateAccountsTable)
		return err
	})
}

func (db *DB) CreateAccByUsername(username string, webKeyPair *util.RsaKeyPair) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount, uuid.New(), username, webKeyPair.Public, webKeyPair.Private, time.Now())
		return err
	})
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	row := db.db.QueryRow(sqlSelectAccById, id)
	return scanAccount(row)
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	row := db.db.QueryRow(sqlSelectAccByUsername, username)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	err := row.Scan(&acc.Id, &acc.Username, &acc.DisplayName, &acc.Summary, &acc.AvatarURL, &acc.CreatedAt, &acc.WebPublicKey, &acc.WebPrivateKey)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, &acc
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Printf("error in transaction: %s", err)
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}
