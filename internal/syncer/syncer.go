// Package syncer reconciles CAD part metadata with task cards in the
// project tool: one card per part number, created when missing and updated
// when the part's summary drifted. Matching is by normalized part number
// carried as a card label, so renames in either system cannot break the
// association.
package syncer

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/partsync/pkg/atlassian"
	"github.com/dmitrymomot/partsync/pkg/logger"
	"github.com/dmitrymomot/partsync/pkg/onshape"
)

// numberLabelPrefix prefixes the normalized part number label on synced
// cards.
const numberLabelPrefix = "pn-"

// maxConcurrent bounds the card create/update fan-out per sync run.
const maxConcurrent = 4

// CardAPI is the card operations the syncer needs. *atlassian.Client
// implements it; tests substitute a stub.
type CardAPI interface {
	Cards(ctx context.Context, cloudID, projectKey, label string) ([]atlassian.Card, error)
	CreateCard(ctx context.Context, cloudID string, card atlassian.NewCard) (atlassian.Card, error)
	UpdateCard(ctx context.Context, cloudID, key string, update atlassian.CardUpdate) error
}

// Report summarizes one sync run.
type Report struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"` // part numbers that could not be synced
}

// Syncer pushes parts into cards according to a profile.
type Syncer struct {
	cards   CardAPI
	profile Profile
	log     *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the syncer's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Syncer) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a Syncer.
func New(cards CardAPI, profile Profile, opts ...Option) *Syncer {
	s := &Syncer{
		cards:   cards,
		profile: profile,
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync reconciles the given parts against the project's existing synced
// cards. Parts without a part number are skipped: the number is the only
// stable identity shared by both systems. Individual card failures are
// collected into the report rather than aborting the run; only listing the
// existing cards is fatal.
func (s *Syncer) Sync(ctx context.Context, cloudID string, parts []onshape.Part) (Report, error) {
	existing, err := s.cards.Cards(ctx, cloudID, s.profile.Project, s.profile.Label)
	if err != nil {
		return Report{}, err
	}

	byNumber := make(map[string]atlassian.Card, len(existing))
	for _, card := range existing {
		if number := numberFromLabels(card.Labels); number != "" {
			byNumber[number] = card
		}
	}

	var (
		mu     sync.Mutex
		report Report
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrent)

	for _, part := range parts {
		number := NormalizeNumber(part.PartNumber)
		if number == "" {
			mu.Lock()
			report.Skipped++
			mu.Unlock()
			continue
		}

		eg.Go(func() error {
			outcome, err := s.syncPart(ctx, cloudID, part, number, byNumber)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, part.PartNumber)
				s.log.WarnContext(ctx, "part sync failed",
					slog.String("part_number", part.PartNumber),
					slog.String("error", err.Error()))
				return nil
			}
			switch outcome {
			case outcomeCreated:
				report.Created++
			case outcomeUpdated:
				report.Updated++
			default:
				report.Unchanged++
			}
			return nil
		})
	}

	_ = eg.Wait()
	return report, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

func (s *Syncer) syncPart(ctx context.Context, cloudID string, part onshape.Part, number string, byNumber map[string]atlassian.Card) (outcome, error) {
	summary := s.profile.Summary(part.PartNumber, part.Name, part.Revision)

	card, ok := byNumber[number]
	if !ok {
		description := "Synced from CAD part " + part.PartNumber
		if s.profile.IncludeRevision && part.Revision != "" {
			description += ", revision " + part.Revision
		}
		_, err := s.cards.CreateCard(ctx, cloudID, atlassian.NewCard{
			ProjectKey:  s.profile.Project,
			Summary:     summary,
			Description: description,
			Labels:      []string{s.profile.Label, numberLabelPrefix + number},
		})
		if err != nil {
			return outcomeUnchanged, err
		}
		return outcomeCreated, nil
	}

	if card.Summary == summary {
		return outcomeUnchanged, nil
	}
	if err := s.cards.UpdateCard(ctx, cloudID, card.Key, atlassian.CardUpdate{Summary: &summary}); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeUpdated, nil
}

// numberFromLabels extracts the normalized part number from a synced
// card's labels.
func numberFromLabels(labels []string) string {
	for _, label := range labels {
		if rest, ok := strings.CutPrefix(label, numberLabelPrefix); ok {
			return rest
		}
	}
	return ""
}

// NormalizeNumber canonicalizes a part number for matching: Unicode
// compatibility normalization, case folding, and whitespace collapsed to
// single dashes. CAD part numbers are entered by hand and arrive with
// full-width characters, stray spaces, and inconsistent casing.
func NormalizeNumber(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), "-")
}
