// Package admin implements AdminService: mutating and query operations on
// the credential pool, including the batch-import algorithm.
package admin

import (
	"context"
	"sort"
	"strings"

	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/kirogate/kirogate/internal/gatewayerr"
	"github.com/kirogate/kirogate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxBatchSize = 1000
)

// Service orchestrates credentials.Store with batch-import semantics and
// the balance/usage view the admin HTTP surface exposes.
type Service struct {
	store  *credentials.Store
	tracer trace.Tracer
}

// New builds a Service backed by store.
func New(store *credentials.Store) *Service {
	return &Service{store: store, tracer: telemetry.GetTracer(telemetry.DefaultSettings())}
}

// CredentialStatus is one row of ListCredentials.
type CredentialStatus struct {
	ID           int64
	Priority     uint32
	Disabled     bool
	FailureCount int
	IsCurrent    bool
	Connections  int64
	AuthMethod   credentials.AuthMethod
}

// ListCredentials returns every credential, ordered ascending by priority.
func (s *Service) ListCredentials() []CredentialStatus {
	snap := s.store.Snapshot()
	out := make([]CredentialStatus, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		out = append(out, CredentialStatus{
			ID:           e.ID,
			Priority:     e.Priority,
			Disabled:     e.Disabled,
			FailureCount: e.FailureCount,
			IsCurrent:    e.IsCurrent,
			Connections:  e.Connections,
			AuthMethod:   e.AuthMethod,
		})
	}
	return out
}

// SetDisabled flips a credential's disabled flag, switching the pool's
// current selection if the disabled credential was it.
func (s *Service) SetDisabled(id int64, disabled bool) error {
	return s.store.SetDisabled(id, disabled)
}

// SetPriority updates a credential's priority.
func (s *Service) SetPriority(id int64, priority uint32) error {
	return s.store.SetPriority(id, priority)
}

// ResetAndEnable clears failures and re-enables a credential.
func (s *Service) ResetAndEnable(id int64) error {
	return s.store.ResetAndEnable(id)
}

// RefreshToken forces a token refresh for a credential.
func (s *Service) RefreshToken(ctx context.Context, id int64) error {
	return s.store.ForceRefresh(ctx, id)
}

// Balance is the admin-facing usage view.
type Balance struct {
	CurrentUsage      float64
	UsageLimit        float64
	Remaining         float64
	UsagePercentage   float64
	SubscriptionTitle string
}

// GetBalance queries the upstream balance endpoint for a credential.
func (s *Service) GetBalance(ctx context.Context, id int64) (Balance, error) {
	usage, err := s.store.GetUsage(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		CurrentUsage:      usage.CurrentUsage,
		UsageLimit:        usage.UsageLimit,
		Remaining:         usage.Remaining(),
		UsagePercentage:   usage.Percentage(),
		SubscriptionTitle: usage.SubscriptionTitle,
	}, nil
}

// AddCredential inserts a single credential.
func (s *Service) AddCredential(cred credentials.Credential) (int64, error) {
	return s.store.Add(cred)
}

// DeleteCredential removes a disabled credential.
func (s *Service) DeleteCredential(id int64) error {
	return s.store.Delete(id)
}

// ImportResult is one row of a batch import's per-line outcome.
type ImportResult struct {
	Line   int
	Status string // "imported" | "failed"
	Error  string
}

// ImportSummary is the full batch-import response.
type ImportSummary struct {
	Success  bool
	Message  string
	Imported int
	Failed   int
	Skipped  int
	Results  []ImportResult
}

// BatchImport implements the source's batch_import_credentials algorithm
// verbatim: bound checks, trimming, per-batch and per-store dedup by
// fingerprint, and skip_invalid branching.
func (s *Service) BatchImport(ctx context.Context, tokens []string, skipInvalid bool) (ImportSummary, error) {
	_, span := s.tracer.Start(ctx, "admin.BatchImport", trace.WithAttributes(attribute.Int("batch_size", len(tokens))))
	defer span.End()

	summary, err := s.batchImport(tokens, skipInvalid)
	if err != nil {
		telemetry.RecordErrorOnSpan(span, err)
		return summary, err
	}
	span.SetAttributes(
		attribute.Int("imported", summary.Imported),
		attribute.Int("failed", summary.Failed),
		attribute.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (s *Service) batchImport(tokens []string, skipInvalid bool) (ImportSummary, error) {
	if len(tokens) > maxBatchSize {
		return ImportSummary{}, gatewayerr.NewInvalidRequest("batch of %d exceeds max batch size %d", len(tokens), maxBatchSize)
	}

	// Fingerprints aren't exposed on the read-only snapshot; dedup against
	// the store happens inside store.Add, which is authoritative. This set
	// only dedups within the batch itself.
	seenInBatch := map[string]bool{}

	var results []ImportResult
	var imported, failed, skipped int

	type parsed struct {
		line  int
		token string
	}
	var toImport []parsed

	for i, raw := range tokens {
		line := i + 1
		token := strings.TrimSpace(raw)
		if token == "" {
			skipped++
			continue
		}

		if err := credentials.ValidateRefreshToken(token); err != nil {
			if skipInvalid {
				results = append(results, ImportResult{Line: line, Status: "failed", Error: err.Error()})
				failed++
				continue
			}
			return ImportSummary{}, gatewayerr.NewInvalidRequest("line %d: %v", line, err)
		}

		fp := credentials.Fingerprint(token)
		if seenInBatch[fp] {
			msg := "duplicate refresh token within batch"
			if skipInvalid {
				results = append(results, ImportResult{Line: line, Status: "failed", Error: msg})
				failed++
				continue
			}
			return ImportSummary{}, gatewayerr.NewInvalidRequest("line %d: %s", line, msg)
		}
		seenInBatch[fp] = true
		toImport = append(toImport, parsed{line: line, token: token})
	}

	for _, p := range toImport {
		id, err := s.store.Add(credentials.Credential{RefreshToken: p.token})
		if err != nil {
			if skipInvalid {
				results = append(results, ImportResult{Line: p.line, Status: "failed", Error: err.Error()})
				failed++
				continue
			}
			return ImportSummary{}, err
		}
		results = append(results, ImportResult{Line: p.line, Status: "imported"})
		imported++
		_ = id
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Line < results[j].Line })

	success := imported > 0 || (failed == 0 && skipped == len(tokens))

	var message string
	switch {
	case imported > 0 && failed == 0:
		message = "all credentials imported successfully"
	case imported > 0 && failed > 0:
		message = "some credentials failed to import"
	case imported == 0 && failed > 0:
		message = "no credentials were imported"
	default:
		message = "no valid credentials in batch"
	}

	return ImportSummary{
		Success:  success,
		Message:  message,
		Imported: imported,
		Failed:   failed,
		Skipped:  skipped,
		Results:  results,
	}, nil
}
