package server

import (
	"context"
	"log/slog"
	"time"
)

// UserRefresher periodically recomputes the active-user list (subscription
// users plus users seen in the recent buffer) and pushes it to connected
// dashboard clients.
type UserRefresher struct {
	server   *Server
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewUserRefresher creates the refresher.
func NewUserRefresher(server *Server, interval time.Duration) *UserRefresher {
	return &UserRefresher{server: server, interval: interval}
}

// Start launches the refresh loop. Calling Start twice is a no-op.
func (r *UserRefresher) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
	slog.Info("Active-user refresher started", "interval", r.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *UserRefresher) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *UserRefresher) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh()
		}
	}
}

func (r *UserRefresher) refresh() {
	users := r.server.core.Subscriptions().Current().Users
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		seen[u] = struct{}{}
	}
	for _, u := range r.server.recent.Usernames() {
		if _, ok := seen[u]; !ok {
			users = append(users, u)
		}
	}
	r.server.hub.BroadcastUsers(users)
}
