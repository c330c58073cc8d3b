package requestlog

import (
	"context"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Query parameters that carry credentials; their values never reach storage.
var redacted = []string{"token", "auth_token"}

const flushTimeout = 5 * time.Second

type Config struct {
	FlushInterval time.Duration
	Retention     time.Duration // zero keeps entries forever
	QueueSize     int
}

// Recorder buffers entries from request handlers and flushes them to the
// Store from a single worker. Handlers never wait on the database: when the
// queue is full the entry is dropped.
type Recorder struct {
	store Store
	log   *slog.Logger
	cfg   Config
	queue chan Entry
	now   func() time.Time
}

func NewRecorder(store Store, log *slog.Logger, cfg Config) *Recorder {
	return &Recorder{
		store: store,
		log:   log,
		cfg:   cfg,
		queue: make(chan Entry, cfg.QueueSize),
		now:   time.Now,
	}
}

// Record queues e, stamping its ID and time when unset.
func (rec *Recorder) Record(e Entry) bool {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.DateTime == 0 {
		e.DateTime = rec.now().Unix()
	}
	select {
	case rec.queue <- e:
		return true
	default:
		rec.log.Warn("Request log queue full, dropping entry", "method", e.Method, "uri", e.URI)
		return false
	}
}

// Middleware records each request as it arrives. Mounted behind the auth
// middleware it attributes the request to the caller.
func (rec *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _, _ := myMiddleware.UserFromContext(r.Context())
		rec.Record(Entry{Method: r.Method, URI: redactURI(r.URL), UserID: userID})
		next.ServeHTTP(w, r)
	})
}

// Run flushes the queue every FlushInterval and prunes expired entries once
// an hour, until ctx ends. Whatever is still queued then is flushed once
// more before Run returns.
func (rec *Recorder) Run(ctx context.Context) error {
	flush := time.NewTicker(rec.cfg.FlushInterval)
	defer flush.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			rec.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-flush.C:
			rec.flush(ctx)
		case <-prune.C:
			rec.prune(ctx)
		}
	}
}

func (rec *Recorder) flush(ctx context.Context) {
	var batch []Entry
drain:
	for {
		select {
		case e := <-rec.queue:
			batch = append(batch, e)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := rec.store.InsertBatch(ctx, batch); err != nil {
		rec.log.Error("Request log flush failed", "entries", len(batch), "error", err)
		return
	}
	rec.log.Debug("Request logs flushed", "entries", len(batch))
}

func (rec *Recorder) prune(ctx context.Context) {
	if rec.cfg.Retention <= 0 {
		return
	}
	cutoff := rec.now().Add(-rec.cfg.Retention).Unix()
	n, err := rec.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		rec.log.Error("Request log pruning failed", "error", err)
		return
	}
	if n > 0 {
		rec.log.Info("Pruned request logs", "deleted", n)
	}
}

func redactURI(u *url.URL) string {
	query := u.Query()
	changed := false
	for _, key := range redacted {
		if query.Has(key) {
			query.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return u.RequestURI()
	}
	clean := *u
	clean.RawQuery = query.Encode()
	return clean.RequestURI()
}
