package folioboard

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/folioboard/folioboard.go/internal/cache"
	"github.com/folioboard/folioboard.go/pkg/conn"
	"github.com/folioboard/folioboard.go/pkg/constants"
	"github.com/folioboard/folioboard.go/pkg/gorilla"
	"github.com/folioboard/folioboard.go/pkg/logger"
)

// Config carries the connection credentials and local paths supplied at
// process start. A zero Config is valid: the client comes up signed out and
// unreachable, serving cached values only.
type Config struct {
	// Endpoint is the WebSocket URL of the remote document store. Empty means
	// unreachable.
	Endpoint string
	// Token is the identity provider's bearer token, presented to the store
	// after connecting and used to derive the initial identity. Optional.
	Token string
	// CachePath is the SQLite file backing the local fallback cache. Empty
	// disables the cache; ":memory:" gives a throwaway one.
	CachePath string
	// LogPath, when set, appends structured logs to the given file.
	LogPath string
}

// ConfigFromEnv reads the standard environment variables.
func ConfigFromEnv() Config {
	return Config{
		Endpoint:  getEnvOrDefault("FOLIOBOARD_ENDPOINT", ""),
		Token:     getEnvOrDefault("FOLIOBOARD_TOKEN", ""),
		CachePath: getEnvOrDefault("FOLIOBOARD_CACHE", ""),
		LogPath:   getEnvOrDefault("FOLIOBOARD_LOG", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// DB is the entry point: it owns the store connection, the listener manager,
// the session and the local cache, and mints the field and collection hooks.
type DB struct {
	conn    conn.Connection // nil while unreachable
	cache   *cache.Cache    // nil when disabled
	logger  zerolog.Logger
	manager *ListenerManager
	session *Session
}

// New builds a client from cfg. Misconfiguration never panics and never
// forfeits the client: a missing endpoint or a failed dial yields a DB in the
// well-defined unreachable state, and the dial error is returned alongside it
// so the caller can report the degradation.
func New(cfg Config) (*DB, error) {
	log, logErr := logger.New().FromPath(cfg.LogPath).Make()

	var c conn.Connection
	var connErr error
	if cfg.Endpoint == "" {
		connErr = constants.ErrNoEndpoint
	} else {
		c, connErr = gorilla.Create().Connect(cfg.Endpoint)
		if connErr == nil && cfg.Token != "" {
			if err := c.Authenticate(cfg.Token); err != nil {
				log.Warn().Err(err).Msg("authenticate")
			}
		}
	}
	if connErr != nil {
		c = nil
		log.Warn().Err(connErr).Msg("store unreachable, running on local fallback")
	}

	var store *cache.Cache
	if cfg.CachePath != "" {
		var err error
		if store, err = cache.Open(cfg.CachePath); err != nil {
			store = nil
			log.Warn().Err(err).Msg("local cache unavailable")
		}
	}

	db := &DB{
		conn:    c,
		cache:   store,
		logger:  log,
		session: newSession(),
	}
	db.manager = newListenerManager(c, log)

	if cfg.Token != "" && c != nil {
		if err := db.session.SignIn(cfg.Token); err != nil {
			log.Warn().Err(err).Msg("sign in from config token")
		}
	}

	if logErr != nil {
		return db, logErr
	}
	return db, connErr
}

// FromConnection builds a client over a caller-supplied store connection.
// Used by tests and by embedders that bring their own engine.
func FromConnection(c conn.Connection) *DB {
	db := &DB{
		conn:    c,
		logger:  zerolog.Nop(),
		session: newSession(),
	}
	db.manager = newListenerManager(c, db.logger)
	return db
}

// WithCache attaches a local fallback cache. Returns db for chaining.
func (db *DB) WithCache(store *cache.Cache) *DB {
	db.cache = store
	return db
}

// WithLogger replaces the logger. Returns db for chaining.
func (db *DB) WithLogger(log zerolog.Logger) *DB {
	db.logger = log
	db.manager.logger = log
	return db
}

// Session returns the identity holder hooks watch.
func (db *DB) Session() *Session {
	return db.session
}

// Manager exposes the listener registry; consumers outside this package only
// need it to observe or share subscriptions, never to mutate its internals.
func (db *DB) Manager() *ListenerManager {
	return db.manager
}

// Reachable reports whether the remote store is configured and connected.
func (db *DB) Reachable() bool {
	return db.conn != nil
}

// Close tears down the connection and the cache. Hooks left open deliver
// nothing further.
func (db *DB) Close() error {
	var firstErr error
	if db.conn != nil {
		firstErr = db.conn.Close()
	}
	if db.cache != nil {
		if err := db.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (db *DB) cachedValue(uid, field string) (any, bool) {
	if db.cache == nil {
		return nil, false
	}
	return db.cache.Get(uid, field)
}

func (db *DB) cacheValue(uid, field string, value any) {
	if db.cache == nil {
		return
	}
	if err := db.cache.Put(uid, field, value); err != nil {
		db.logger.Warn().Err(err).Str("field", field).Msg("cache write-through")
	}
}

// One document per user holds every dashboard field; each logical list is its
// own per-user sub-collection.

func docPath(uid string) string {
	return "users/" + uid + "/portfolio/data"
}

func collectionPath(uid, name string) string {
	return "users/" + uid + "/" + name
}

func itemPath(uid, name, id string) string {
	return collectionPath(uid, name) + "/" + id
}
