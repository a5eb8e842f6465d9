package ports

import "context"

// KeyedLocker hands out non-blocking per-key exclusive locks.
//
// TryLock returns acquired=false without error when the key is held
// elsewhere. unlock is non-nil only when acquired is true.
type KeyedLocker interface {
	TryLock(ctx context.Context, key string) (unlock func(), acquired bool, err error)
}
