package memory

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"autolead-telegram-bot/internal/usecase"
)

// SessionRepo хранит состояние диалогов в go-cache. ttl <= 0 — без истечения.
// Замки сессий живут отдельно от кэша и не истекают вместе с состоянием.
type SessionRepo struct {
	cache *cache.Cache
	locks sync.Map // int64 -> *sync.Mutex
}

func NewSessionRepo(ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		return &SessionRepo{cache: cache.New(cache.NoExpiration, 0)}
	}
	return &SessionRepo{cache: cache.New(ttl, ttl)}
}

// Update выполняет fn под замком конкретной сессии; разные сессии не блокируют друг друга.
func (r *SessionRepo) Update(sessionID int64, fn func(s *usecase.Session)) {
	mu := r.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	key := strconv.FormatInt(sessionID, 10)
	s := usecase.Session{Phase: usecase.PhaseIdle}
	if x, ok := r.cache.Get(key); ok {
		s = x.(usecase.Session)
	}
	fn(&s)
	// заодно продлеваем TTL активной сессии
	r.cache.Set(key, s, cache.DefaultExpiration)
}

// Get возвращает копию состояния сессии.
func (r *SessionRepo) Get(sessionID int64) (usecase.Session, bool) {
	x, ok := r.cache.Get(strconv.FormatInt(sessionID, 10))
	if !ok {
		return usecase.Session{}, false
	}
	return x.(usecase.Session), true
}

func (r *SessionRepo) lock(sessionID int64) *sync.Mutex {
	if mu, ok := r.locks.Load(sessionID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := r.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
