package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/board-service/internal/domain"
)

type Options struct {
	MessageLimit int
	Now          func() time.Time
	NewID        func() string
}

func (o *Options) defaults() {
	if o.MessageLimit <= 0 {
		o.MessageLimit = domain.DefaultMessageLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// Registry maps room ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
}

func NewRegistry(opts Options) *Registry {
	opts.defaults()
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

func (r *Registry) newState(id, name string, private bool, creator string) state {
	if name == "" {
		name = domain.DefaultRoomName(id)
	}
	return state{
		id:           id,
		name:         name,
		isPrivate:    private,
		createdBy:    creator,
		createdAt:    r.opts.Now(),
		messageLimit: r.opts.MessageLimit,
		now:          r.opts.Now,
		newID:        r.opts.NewID,
	}
}

// Create installs a fresh session under id, replacing and stopping any
// existing one.
func (r *Registry) Create(id, name string, private bool, creator string) *Session {
	s := newSession(r.newState(id, name, private, creator))

	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return s
}

// GetOrCreate returns the session for id, creating a public one owned by
// creator when absent. The bool reports whether it was created.
func (r *Registry) GetOrCreate(id, creator string) (*Session, bool) {
	if s, ok := r.Get(id); ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := newSession(r.newState(id, "", false, creator))
	r.sessions[id] = s
	return s, true
}

// Restore installs a session from a durable record unless a live session
// with the same id already exists.
func (r *Registry) Restore(rec domain.RoomRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[rec.ID]; ok {
		return false
	}

	st := r.newState(rec.ID, rec.Name, rec.IsPrivate, rec.CreatedBy)
	if !rec.CreatedAt.IsZero() {
		st.createdAt = rec.CreatedAt
	}
	if rec.MessageLimit > 0 {
		st.messageLimit = rec.MessageLimit
	}
	st.locked = rec.Locked
	st.canvas = cloneStrokes(rec.CanvasState)
	st.messages = cloneMessages(rec.Messages)
	if over := len(st.messages) - st.messageLimit; over > 0 {
		st.messages = st.messages[over:]
	}

	r.sessions[rec.ID] = newSession(st)
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes and stops the session. It reports whether one existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Stop()
	}
	return ok
}

func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ListPublic returns details of every non-private session, oldest first.
func (r *Registry) ListPublic() []domain.RoomDetails {
	out := make([]domain.RoomDetails, 0)
	for _, s := range r.All() {
		d, err := s.Details(false)
		if err != nil || d.IsPrivate {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FindByConnection returns sessions holding connID as some participant's
// current connection.
func (r *Registry) FindByConnection(connID string) []*Session {
	var out []*Session
	for _, s := range r.All() {
		if _, ok, err := s.IdentityOf(connID); err == nil && ok {
			out = append(out, s)
		}
	}
	return out
}

// Close stops every session and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
