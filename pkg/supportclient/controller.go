package supportclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reference polling cadences: visible/hidden intervals for the thread list
// and the active thread's log.
const (
	ListPollActive      = 60 * time.Second
	ListPollInactive    = 180 * time.Second
	MessagePollActive   = 30 * time.Second
	MessagePollInactive = 120 * time.Second
)

// ErrEmptyMessage rejects a send with no body, attachment or catalog link
// before any network call.
var ErrEmptyMessage = errors.New("message requires a body, attachment or catalog link")

// ErrInvalidRating rejects out-of-range ratings before any network call.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Controller binds the API client, the snapshot store and two adaptive
// pollers into the client-side lifecycle: list refresh, active-thread log
// refresh, sends with causal refetch, and the bootstrap guard.
type Controller struct {
	client *Client
	store  *ThreadStore
	logger *zap.Logger

	listPoller    *Poller
	messagePoller *Poller

	bootstrapMu    sync.Mutex
	bootstrapped   bool
	lifetime       context.Context
	cancelLifetime context.CancelFunc
}

// NewController wires a controller over a client. The logger records poll
// tick failures; nil falls back to a no-op logger.
func NewController(client *Client, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:         client,
		store:          NewThreadStore(),
		logger:         logger,
		lifetime:       ctx,
		cancelLifetime: cancel,
	}
	c.listPoller = NewPoller(c.refreshList, ListPollActive, ListPollInactive)
	c.messagePoller = NewPoller(c.refreshMessages, MessagePollActive, MessagePollInactive)
	return c
}

// Store exposes the snapshot store for reads.
func (c *Controller) Store() *ThreadStore {
	return c.store
}

// Start begins list polling with an immediate refresh.
func (c *Controller) Start() {
	c.listPoller.Start()
}

// SetVisible feeds a visibility transition to both pollers.
func (c *Controller) SetVisible(v bool) {
	c.listPoller.SetVisible(v)
	c.messagePoller.SetVisible(v)
}

// OpenThread makes the thread active: its log starts polling at the message
// cadence and an immediate fetch fills the snapshot.
func (c *Controller) OpenThread(threadID int64) {
	c.store.Activate(threadID)
	c.messagePoller.Start()
}

// CloseThread stops log polling and clears the active thread.
func (c *Controller) CloseThread() {
	c.messagePoller.Stop()
	c.store.Deactivate()
}

// EnsureThread guarantees the artist has a thread to write into. The local
// guard pairs with the server-side idempotent bootstrap, so double
// invocations cannot open two threads. It latches only on success; a failed
// fetch leaves the guard open so the next call retries.
func (c *Controller) EnsureThread(ctx context.Context) error {
	c.bootstrapMu.Lock()
	defer c.bootstrapMu.Unlock()
	if c.bootstrapped {
		return nil
	}
	threads, err := c.client.ListThreads(ctx, "")
	if err != nil {
		return err
	}
	c.store.ReplaceThreads(threads)
	c.bootstrapped = true
	return nil
}

// SendMessage validates locally, awaits the server write, then refetches
// the log and the summaries so local state reflects the send in order.
func (c *Controller) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if strings.TrimSpace(req.Message) == "" && req.AttachmentURL == "" &&
		req.ReleaseID == nil && req.TrackID == nil {
		return nil, ErrEmptyMessage
	}
	msg, err := c.client.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	c.refetchAfterWrite(ctx, req.ThreadID)
	return msg, nil
}

// RateThread validates the range locally, then records the rating.
func (c *Controller) RateThread(ctx context.Context, threadID int64, rating int) (*Thread, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	thread, err := c.client.RateThread(ctx, threadID, rating)
	if err != nil {
		return nil, err
	}
	c.refetchAfterWrite(ctx, threadID)
	return thread, nil
}

// UpdateStatus forwards a lifecycle change and reconciles.
func (c *Controller) UpdateStatus(ctx context.Context, threadID int64, status string) (*Thread, error) {
	thread, err := c.client.UpdateStatus(ctx, threadID, status)
	if err != nil {
		return nil, err
	}
	c.refetchAfterWrite(ctx, threadID)
	return thread, nil
}

// AttachRelease forwards a catalog link and reconciles.
func (c *Controller) AttachRelease(ctx context.Context, threadID int64, releaseID, trackID *int64) (*Thread, error) {
	thread, err := c.client.AttachRelease(ctx, threadID, releaseID, trackID)
	if err != nil {
		return nil, err
	}
	c.refetchAfterWrite(ctx, threadID)
	return thread, nil
}

// Close destroys both pollers and cancels in-flight refreshes.
func (c *Controller) Close() {
	c.listPoller.Destroy()
	c.messagePoller.Destroy()
	c.cancelLifetime()
}

func (c *Controller) refreshList() {
	ctx, cancel := context.WithTimeout(c.lifetime, 20*time.Second)
	defer cancel()

	threads, err := c.client.ListThreads(ctx, "")
	if err != nil {
		c.logger.Warn("thread list poll failed", zap.Error(err))
		return
	}
	c.store.ReplaceThreads(threads)
}

func (c *Controller) refreshMessages() {
	threadID, gen := c.store.ActiveThread()
	if threadID == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(c.lifetime, 20*time.Second)
	defer cancel()

	log, err := c.client.GetThreadLog(ctx, threadID)
	if err != nil {
		c.logger.Warn("thread log poll failed", zap.Int64("thread_id", threadID), zap.Error(err))
		return
	}
	if !c.store.ReplaceMessages(threadID, gen, log.Messages) {
		c.logger.Debug("discarded stale log response", zap.Int64("thread_id", threadID))
	}
}

// refetchAfterWrite reconciles synchronously so the caller observes its own
// write in the snapshots.
func (c *Controller) refetchAfterWrite(ctx context.Context, threadID int64) {
	if activeID, gen := c.store.ActiveThread(); activeID == threadID {
		if log, err := c.client.GetThreadLog(ctx, threadID); err == nil {
			c.store.ReplaceMessages(threadID, gen, log.Messages)
		} else {
			c.logger.Warn("post-write log refetch failed", zap.Error(err))
		}
	}
	if threads, err := c.client.ListThreads(ctx, ""); err == nil {
		c.store.ReplaceThreads(threads)
	} else {
		c.logger.Warn("post-write list refetch failed", zap.Error(err))
	}
}
