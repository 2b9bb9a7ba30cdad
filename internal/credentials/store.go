// Package credentials implements the in-memory credential pool: priority
// ordering, disable flags, failure counters, current-selection state, and
// per-credential connection accounting.
package credentials

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirogate/kirogate/internal/gatewayerr"
	"github.com/kirogate/kirogate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const failureThreshold = 3

// AuthMethod names how a Credential authenticates against the upstream.
type AuthMethod string

const (
	AuthSocial AuthMethod = "social"
	AuthIDC    AuthMethod = "idc"
)

// Credential is one upstream authentication record.
type Credential struct {
	ID                int64
	RefreshToken      string
	AccessToken       string
	AccessTokenExpiry time.Time
	ProfileARN        string
	AuthMethod        AuthMethod
	OIDCClientID      string
	OIDCClientSecret  string
	Region            string
	MachineID         string
	Priority          uint32
	Disabled          bool
	FailureCount      int

	activeConnections int64
}

// Usage is the balance-query response shape.
type Usage struct {
	CurrentUsage     float64
	UsageLimit       float64
	SubscriptionTitle string
	NextResetDate    time.Time
}

// Remaining and Percentage derive the two fields the admin surface wants,
// guarding against a zero usage limit.
func (u Usage) Remaining() float64 {
	r := u.UsageLimit - u.CurrentUsage
	if r < 0 {
		return 0
	}
	return r
}

func (u Usage) Percentage() float64 {
	if u.UsageLimit <= 0 {
		return 0
	}
	pct := u.CurrentUsage / u.UsageLimit * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// UpstreamAuth is the external collaborator that actually talks to the
// upstream's refresh and balance endpoints. CredentialStore only needs its
// contract; internal/kiro provides the HTTP-backed implementation.
type UpstreamAuth interface {
	Refresh(ctx context.Context, cred *Credential) error
	Balance(ctx context.Context, cred *Credential) (Usage, error)
}

// Entry is a read-only, secret-free view of a credential for admin listing.
type Entry struct {
	ID           int64
	Priority     uint32
	Disabled     bool
	FailureCount int
	IsCurrent    bool
	Connections  int64
	AuthMethod   AuthMethod
}

// Snapshot is a point-in-time, copy-only view of the pool.
type Snapshot struct {
	Total     int
	Available int
	CurrentID int64
	Entries   []Entry
}

// Guard decrements a credential's active-connection counter exactly once,
// on Release. It is safe to call Release multiple times; only the first
// call has effect.
type Guard struct {
	once sync.Once
	cred *Credential
}

// Release drops the connection count. Idempotent.
func (g *Guard) Release() {
	g.once.Do(func() {
		atomic.AddInt64(&g.cred.activeConnections, -1)
	})
}

// Store is the mutex-serialized credential pool. All mutating operations
// run under mu; the active-connection counter lives outside it as atomic
// state, per the shared-resource policy.
type Store struct {
	mu      sync.Mutex
	byID    map[int64]*Credential
	nextID  int64
	current int64
	auth    UpstreamAuth
	tracer  trace.Tracer
}

// New creates an empty Store. auth may be nil if refresh/balance are never
// called (e.g. in tests exercising only pool bookkeeping).
func New(auth UpstreamAuth) *Store {
	return &Store{
		byID:   make(map[int64]*Credential),
		auth:   auth,
		tracer: telemetry.GetTracer(telemetry.DefaultSettings()),
	}
}

// SetUpstreamAuth wires the upstream auth collaborator after construction,
// breaking the Store/kiro.Client initialization cycle: kiro.Client needs a
// *Store to dispatch against, and Store needs a kiro.Client as its
// UpstreamAuth implementation.
func (s *Store) SetUpstreamAuth(auth UpstreamAuth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
}

const (
	minTokenLength = 100
	maxTokenLength = 4096
)

// ValidateRefreshToken applies the sanity filters from the source: minimum
// and maximum length, and presence of a ':' separator.
func ValidateRefreshToken(token string) error {
	if len(token) < minTokenLength {
		return gatewayerr.NewInvalidRequest("refresh token shorter than %d characters", minTokenLength)
	}
	if len(token) > maxTokenLength {
		return gatewayerr.NewInvalidRequest("refresh token longer than %d characters", maxTokenLength)
	}
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			return nil
		}
	}
	return gatewayerr.NewInvalidRequest("refresh token must contain ':'")
}

// Fingerprint returns the deduplication key for a refresh token: its first
// 64 characters, or the whole token if shorter.
func Fingerprint(token string) string {
	if len(token) <= 64 {
		return token
	}
	return token[:64]
}

// Add validates and inserts cred, assigning it a fresh monotonic id.
func (s *Store) Add(cred Credential) (int64, error) {
	if err := ValidateRefreshToken(cred.RefreshToken); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := Fingerprint(cred.RefreshToken)
	for _, existing := range s.byID {
		if Fingerprint(existing.RefreshToken) == fp {
			return 0, gatewayerr.NewInvalidRequest("credential with this refresh token already exists")
		}
	}

	s.nextID++
	cred.ID = s.nextID
	s.byID[cred.ID] = &cred

	if s.current == 0 && !cred.Disabled {
		s.current = cred.ID
	}
	return cred.ID, nil
}

// Delete removes a disabled credential. Enabled credentials cannot be
// deleted; unknown ids are reported as NotFound.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return gatewayerr.NewNotFound("credential %d not found", id)
	}
	if !cred.Disabled {
		return gatewayerr.NewInvalidRequest("credential %d must be disabled before deletion", id)
	}
	delete(s.byID, id)
	if s.current == id {
		s.current = 0
		s.switchToNextLocked()
	}
	return nil
}

// SetDisabled flips the disabled flag. If it disables the current
// credential, it switches the current selection to the next available
// one itself, under the same lock.
func (s *Store) SetDisabled(id int64, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return gatewayerr.NewNotFound("credential %d not found", id)
	}
	wasCurrent := s.current == id && disabled
	cred.Disabled = disabled
	if wasCurrent {
		s.switchToNextLocked()
	}
	return nil
}

// SetPriority updates a credential's priority. It does not re-select the
// current credential.
func (s *Store) SetPriority(id int64, priority uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return gatewayerr.NewNotFound("credential %d not found", id)
	}
	cred.Priority = priority
	return nil
}

// ResetAndEnable clears the failure counter and re-enables the credential.
func (s *Store) ResetAndEnable(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return gatewayerr.NewNotFound("credential %d not found", id)
	}
	cred.Disabled = false
	cred.FailureCount = 0
	return nil
}

// Snapshot returns a value-copy view of the pool, sorted ascending by
// priority (ties broken by id).
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.byID))
	available := 0
	for _, c := range s.byID {
		if !c.Disabled {
			available++
		}
		entries = append(entries, Entry{
			ID:           c.ID,
			Priority:     c.Priority,
			Disabled:     c.Disabled,
			FailureCount: c.FailureCount,
			IsCurrent:    c.ID == s.current,
			Connections:  atomic.LoadInt64(&c.activeConnections),
			AuthMethod:   c.AuthMethod,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].ID < entries[j].ID
	})

	return Snapshot{
		Total:     len(s.byID),
		Available: available,
		CurrentID: s.current,
		Entries:   entries,
	}
}

// SwitchToNext selects the lowest-priority, non-disabled credential that
// differs from the current one, ties broken by ascending id. If none
// exists, current is left unchanged.
func (s *Store) SwitchToNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchToNextLocked()
}

func (s *Store) switchToNextLocked() {
	var best *Credential
	for _, c := range s.byID {
		if c.Disabled || c.ID == s.current {
			continue
		}
		if best == nil || c.Priority < best.Priority || (c.Priority == best.Priority && c.ID < best.ID) {
			best = c
		}
	}
	if best != nil {
		s.current = best.ID
	}
}

// RecordFailure increments a credential's failure counter. At the
// threshold it disables the credential and switches to the next one.
func (s *Store) RecordFailure(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return
	}
	cred.FailureCount++
	if cred.FailureCount >= failureThreshold {
		cred.Disabled = true
		if s.current == id {
			s.switchToNextLocked()
		}
	}
}

// RecordSuccess resets a credential's failure counter.
func (s *Store) RecordSuccess(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred, ok := s.byID[id]; ok {
		cred.FailureCount = 0
	}
}

// Current returns the currently selected credential, or an error if the
// pool has no available credential.
func (s *Store) Current() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[s.current]
	if !ok || cred.Disabled {
		return nil, gatewayerr.NewServiceUnavailable("no available upstream credential")
	}
	return cred, nil
}

// Get returns a credential by id.
func (s *Store) Get(id int64) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.byID[id]
	if !ok {
		return nil, gatewayerr.NewNotFound("credential %d not found", id)
	}
	return cred, nil
}

// ConnectionGuard increments the credential's active-connection counter
// and returns a Guard that releases it exactly once.
func (s *Store) ConnectionGuard(cred *Credential) *Guard {
	atomic.AddInt64(&cred.activeConnections, 1)
	return &Guard{cred: cred}
}

// ForceRefresh invokes the upstream refresh flow for the given credential.
func (s *Store) ForceRefresh(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "credentials.ForceRefresh", trace.WithAttributes(attribute.Int64("credential_id", id)))
	defer span.End()

	if s.auth == nil {
		err := gatewayerr.NewInternalError(nil, "no upstream auth client configured")
		telemetry.RecordErrorOnSpan(span, err)
		return err
	}
	cred, err := s.Get(id)
	if err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		return err
	}
	if err := s.auth.Refresh(ctx, cred); err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		return err
	}
	return nil
}

// GetUsage queries the upstream balance endpoint for the given credential.
func (s *Store) GetUsage(ctx context.Context, id int64) (Usage, error) {
	ctx, span := s.tracer.Start(ctx, "credentials.GetUsage", trace.WithAttributes(attribute.Int64("credential_id", id)))
	defer span.End()

	if s.auth == nil {
		err := gatewayerr.NewInternalError(nil, "no upstream auth client configured")
		telemetry.RecordErrorOnSpan(span, err)
		return Usage{}, err
	}
	cred, err := s.Get(id)
	if err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		return Usage{}, err
	}
	usage, err := s.auth.Balance(ctx, cred)
	if err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		return Usage{}, err
	}
	return usage, nil
}

// NeedsRefresh reports whether a credential's access token is absent or
// expired (with a small clock-skew buffer).
func NeedsRefresh(cred *Credential) bool {
	if cred.AccessToken == "" {
		return true
	}
	return time.Now().Add(30 * time.Second).After(cred.AccessTokenExpiry)
}
