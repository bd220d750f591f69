// Package notice implements the ban lifecycle state machine and the
// at-least-once delivery queues that carry notice messages to the Core
// service, including natural-lift detection for bans whose timer expires
// without an explicit lift action.
package notice

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvidia/onebot-core-bridge/internal/banstore"
	"github.com/nvidia/onebot-core-bridge/internal/seg"
)

const (
	primaryQueueCapacity = 100
	retryQueueCapacity   = 3
	naturalLiftTick      = 5 * time.Second
	dispatcherPacing     = 1 * time.Second
)

// Sender delivers one notice MessageBase to the Core service, returning
// whether the send succeeded.
type Sender interface {
	Send(msg seg.MessageBase) bool
}

// Engine owns the ban store and the primary/retry delivery queues. The
// natural-lift watcher enqueues its lift notices directly onto the
// delivery queues.
type Engine struct {
	log   *slog.Logger
	store *banstore.Store
	send  Sender

	primary chan seg.MessageBase
	retry   chan seg.MessageBase

	stop chan struct{}
	done chan struct{}
}

// New constructs an Engine.
func New(log *slog.Logger, store *banstore.Store, send Sender) *Engine {
	return &Engine{
		log:     log,
		store:   store,
		send:    send,
		primary: make(chan seg.MessageBase, primaryQueueCapacity),
		retry:   make(chan seg.MessageBase, retryQueueCapacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// enqueue places msg on the primary queue, falling back to a warning drop
// if both queues are full.
func (e *Engine) enqueue(msg seg.MessageBase) {
	select {
	case e.primary <- msg:
		return
	default:
	}
	select {
	case e.retry <- msg:
		return
	default:
	}
	e.log.Warn("notice delivery queues full, dropping notice",
		"group_id", groupIDOf(msg), "message_id", msg.MessageInfo.MessageID)
}

func groupIDOf(msg seg.MessageBase) int64 {
	if msg.MessageInfo.GroupInfo != nil {
		return msg.MessageInfo.GroupInfo.GroupID
	}
	return 0
}

// Ban records a ban (whole-group when userID==0) in the store with a
// lift_time of now+duration, or -1 for whole-group bans, and returns any
// store error.
func (e *Engine) Ban(ctx context.Context, groupID, userID int64, durationSeconds int64) error {
	liftTime := int64(-1)
	if userID != 0 {
		liftTime = time.Now().Unix() + durationSeconds
	}
	return e.store.Upsert(banstore.Record{GroupID: groupID, UserID: userID, LiftTime: liftTime})
}

// LiftBan explicitly removes a ban and enqueues the corresponding notice
// for downstream delivery.
func (e *Engine) LiftBan(groupID, userID int64, operator *seg.UserInfo) error {
	if err := e.store.Delete(groupID, userID); err != nil {
		return err
	}
	e.enqueue(buildLiftNotice(groupID, userID, operator))
	return nil
}

func buildLiftNotice(groupID, userID int64, operator *seg.UserInfo) seg.MessageBase {
	return seg.MessageBase{
		MessageInfo: seg.MessageInfo{
			Platform:  "napcat",
			MessageID: "notice",
			Time:      float64(time.Now().Unix()),
			GroupInfo: &seg.GroupInfo{Platform: "napcat", GroupID: groupID},
			AdditionalConfig: map[string]any{
				"lifted_user_info": map[string]any{"user_id": userID},
				"operator":         operatorValue(operator),
			},
		},
		MessageSegment: seg.Seg{Type: seg.KindNotify, Data: "group_ban.lift_ban"},
	}
}

func operatorValue(operator *seg.UserInfo) any {
	if operator == nil {
		return nil
	}
	return operator
}

// RunNaturalLiftWatcher polls the ban store every 5s and synthesizes lift
// notices for any user-scoped ban whose lift_time has passed.
func (e *Engine) RunNaturalLiftWatcher(ctx context.Context) {
	t := time.NewTicker(naturalLiftTick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.sweepExpiredBans()
		}
	}
}

func (e *Engine) sweepExpiredBans() {
	records, err := e.store.ReadAll()
	if err != nil {
		e.log.Error("notice: failed reading ban store during natural-lift sweep", "err", err)
		return
	}
	now := time.Now().Unix()
	for _, r := range records {
		if r.UserID == 0 || r.LiftTime < 0 || r.LiftTime > now {
			continue
		}
		if err := e.store.Delete(r.GroupID, r.UserID); err != nil {
			e.log.Error("notice: failed deleting naturally-lifted ban", "err", err)
			continue
		}
		e.enqueue(buildLiftNotice(r.GroupID, r.UserID, nil))
	}
}

// RunDispatcher drains the retry queue first (priority), then the primary
// queue, pacing 1s between iterations, requeueing failed sends into the
// bounded retry queue.
func (e *Engine) RunDispatcher(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		default:
		}

		var msg seg.MessageBase
		var have bool
		select {
		case msg = <-e.retry:
			have = true
		default:
			select {
			case msg = <-e.primary:
				have = true
			default:
			}
		}

		if have {
			if !e.send.Send(msg) {
				select {
				case e.retry <- msg:
				default:
					e.log.Warn("notice retry queue full, dropping notice permanently",
						"group_id", groupIDOf(msg))
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(dispatcherPacing):
		}
	}
}

// Close stops the dispatcher loop.
func (e *Engine) Close() {
	close(e.stop)
	<-e.done
}
