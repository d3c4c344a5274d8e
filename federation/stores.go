package federation

import (
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

// Narrow store contracts the federation engine consumes. db.DB satisfies
// all of them; tests substitute in-memory fakes.

type AccountStore interface {
	ReadAccByUsername(username string) (error, *domain.Account)
}

type ActorStore interface {
	ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount)
	ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount)
	SaveRemoteAccount(acc *domain.RemoteAccount) error
	DeleteRemoteAccount(id uuid.UUID) error
}

type StatusStore interface {
	ReadStatusByObjectURI(uri string) (error, *domain.Status)
	// CreateStatusIfAbsent inserts the status unless one with the same
	// object URI already exists; the stored row is returned either way.
	CreateStatusIfAbsent(s *domain.Status) (error, *domain.Status)
	DeleteStatusByObjectURI(uri string) error
}

type FollowStore interface {
	IsFollowing(follower, followed uuid.UUID) (error, bool)
	CreateFollow(f *domain.Follow) error
	DeleteFollowByURI(uri string) error
	AcceptFollowByURI(uri string) error
	ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow)
	DeleteFollowsByRemoteAccountId(id uuid.UUID) error
}

type ActivityStore interface {
	CreateActivity(a *domain.Activity) error
	ReadActivityByURI(uri string) (error, *domain.Activity)
	MarkActivityProcessed(uri string) error
}

type DeliveryStore interface {
	EnqueueDelivery(item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(id uuid.UUID) error
}
