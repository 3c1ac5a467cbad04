package chat

import "sync"

// keyedMutex serializes mutations per room so that the commit order of a room
// is also the order its events reach the hub.
type keyedMutex struct {
	mutex sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mutex sync.Mutex
	refs  int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mutex.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mutex.Unlock()

	l.mutex.Lock()

	return func() {
		l.mutex.Unlock()

		k.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mutex.Unlock()
	}
}
