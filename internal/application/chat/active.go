package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"llm-gateway/internal/domain/model"
)

// ErrThreadBusy 旧生成在等待时间内没有退出
var ErrThreadBusy = errors.New("thread has an active generation")

// slot 线程上的一次排队：prev 为前一个 slot 的 done，done 在本生成及其之前的生成全部退出后关闭
type slot struct {
	gen  *Generation
	prev <-chan struct{}
	done chan struct{}
}

// ActiveGenerations 每个线程至多一个进行中的生成。仅在单实例内生效。
// Reserve 在请求协程中同步排队，因此同一线程上的请求按调用顺序接替。
type ActiveGenerations struct {
	mu       sync.Mutex
	byThread map[string]*slot
	slots    map[*Generation]*slot
}

func NewActiveGenerations() *ActiveGenerations {
	return &ActiveGenerations{
		byThread: make(map[string]*slot),
		slots:    make(map[*Generation]*slot),
	}
}

// Reserve 把 gen 登记为线程最新的生成，并以 superseded 取消之前的生成
func (a *ActiveGenerations) Reserve(gen *Generation) {
	s := &slot{gen: gen, done: make(chan struct{})}

	a.mu.Lock()
	cur, ok := a.byThread[gen.ThreadID]
	if ok {
		s.prev = cur.done
	}
	a.byThread[gen.ThreadID] = s
	a.slots[gen] = s
	a.mu.Unlock()

	if ok {
		cur.gen.Cancel(model.CauseSuperseded)
	}
}

// Await 等待线程上排在 gen 之前的生成全部退出；超过 wait 返回 ErrThreadBusy
func (a *ActiveGenerations) Await(ctx context.Context, gen *Generation, wait time.Duration) error {
	a.mu.Lock()
	s, ok := a.slots[gen]
	a.mu.Unlock()
	if !ok || s.prev == nil {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.prev:
		return nil
	case <-timer.C:
		return ErrThreadBusy
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Acquire Reserve 后 Await
func (a *ActiveGenerations) Acquire(ctx context.Context, gen *Generation, wait time.Duration) error {
	a.Reserve(gen)
	return a.Await(ctx, gen, wait)
}

// Release gen 退出；前面的生成仍未退出时，本 slot 要等它们退出后才算结束
func (a *ActiveGenerations) Release(gen *Generation) {
	a.mu.Lock()
	s, ok := a.slots[gen]
	delete(a.slots, gen)
	a.mu.Unlock()
	if !ok {
		return
	}

	if s.prev == nil {
		a.close(s)
		return
	}
	select {
	case <-s.prev:
		a.close(s)
	default:
		go func() {
			<-s.prev
			a.close(s)
		}()
	}
}

func (a *ActiveGenerations) close(s *slot) {
	a.mu.Lock()
	if a.byThread[s.gen.ThreadID] == s {
		delete(a.byThread, s.gen.ThreadID)
	}
	a.mu.Unlock()
	close(s.done)
}

// Get 线程最新登记的生成
func (a *ActiveGenerations) Get(threadID string) (*Generation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.byThread[threadID]
	if !ok {
		return nil, false
	}
	return s.gen, true
}

// Cancel 取消线程的活动生成，没有时返回 false
func (a *ActiveGenerations) Cancel(threadID string, cause model.CancelCause) bool {
	gen, ok := a.Get(threadID)
	if !ok {
		return false
	}
	select {
	case <-gen.Done():
		return false
	default:
	}
	gen.Cancel(cause)
	return true
}

// Drain 取消全部活动生成并等待它们结束
func (a *ActiveGenerations) Drain(ctx context.Context) error {
	a.mu.Lock()
	all := make([]*slot, 0, len(a.byThread))
	for _, s := range a.byThread {
		all = append(all, s)
	}
	a.mu.Unlock()

	for _, s := range all {
		s.gen.Cancel(model.CauseExplicit)
	}
	for _, s := range all {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Len 有活动生成的线程数
func (a *ActiveGenerations) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byThread)
}
