package mailbox

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/finduo/finduo-sync/pkg/api"
)

// Scanner retrieves the most recent messages from the configured senders.
type Scanner struct {
	dialer Dialer
	logger *slog.Logger
}

// NewScanner creates a Scanner that opens one session per Scan call.
func NewScanner(dialer Dialer, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		dialer: dialer,
		logger: logger.With("component", "mailbox"),
	}
}

// candidate is a message ID in the location it was discovered in.
type candidate struct {
	location string
	// rank is the position of the location in the configured search order.
	rank int
	id   api.MessageID
}

// compareCandidates orders by ID, then by location rank.
func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.id, b.id); c != 0 {
		return c
	}
	return cmp.Compare(a.rank, b.rank)
}

// Scan searches every location for messages from each sender, unions the
// results and fetches the limit numerically highest IDs. Messages are returned
// in ascending ID order; equal IDs from different locations keep the
// configured location order. A non-positive limit means DefaultLimit.
//
// Message IDs are scoped to their location unless the session implements
// MailboxWideIDs, in which case an ID found in several locations is fetched
// once, from the first.
//
// Only connection failures and context cancellation are returned as errors;
// unavailable locations and failed searches or fetches are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, senders, locations []string, limit int) ([]api.RawMessage, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	sess, err := s.dialer.Dial(ctx)
	if err != nil {
		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn("failed to close mailbox session", "error", err)
		}
	}()

	found, err := s.search(ctx, sess, senders, locations)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		s.logger.Info("no candidate messages found")
		return []api.RawMessage{}, nil
	}

	slices.SortFunc(found, compareCandidates)
	batch := found
	if len(batch) > limit {
		batch = batch[len(batch)-limit:]
	}

	s.logger.Info("fetching candidate messages", "found", len(found), "fetching", len(batch))

	messages, err := s.fetch(ctx, sess, batch)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// search returns every discovered message once. Without mailbox-wide IDs a
// message is identified by its location and ID.
func (s *Scanner) search(ctx context.Context, sess Session, senders, locations []string) ([]candidate, error) {
	wide := false
	if w, ok := sess.(MailboxWideIDs); ok {
		wide = w.MailboxWideIDs()
	}

	var found []candidate
	seen := make(map[candidate]struct{})

	for rank, location := range locations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("searching mailbox: %w", err)
		}

		name, err := s.selectLocation(ctx, sess, location)
		if err != nil {
			s.logger.Warn("location unavailable, skipping", "location", location, "error", err)
			continue
		}

		for _, sender := range senders {
			for id := range s.searchSender(ctx, sess, name, sender) {
				key := candidate{location: name, id: id}
				if wide {
					key.location = ""
				}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				found = append(found, candidate{location: name, rank: rank, id: id})
			}
		}
	}

	return found, nil
}

// searchSender returns the set of IDs sent by sender in the selected location.
// A failed search yields an empty set.
func (s *Scanner) searchSender(ctx context.Context, sess Session, location, sender string) map[api.MessageID]struct{} {
	ids, err := sess.Search(ctx, sender)
	if err != nil {
		s.logger.Warn("search failed", "location", location, "sender", sender, "error", err)
		return nil
	}

	set := make(map[api.MessageID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.logger.Debug("searched location", "location", location, "sender", sender, "count", len(set))
	return set
}

// selectLocation selects location, falling back to its alternate name.
// It returns the name that was actually selected.
func (s *Scanner) selectLocation(ctx context.Context, sess Session, location string) (string, error) {
	err := sess.Select(ctx, location)
	if err == nil {
		return location, nil
	}

	alt, ok := AlternateLocation(location)
	if !ok {
		return "", err
	}
	if altErr := sess.Select(ctx, alt); altErr != nil {
		return "", errors.Join(err, altErr)
	}
	s.logger.Debug("selected alternate location", "location", location, "alternate", alt)
	return alt, nil
}

// fetch retrieves batch grouped by location and returns the messages in
// batch order. A context that expires while fetching fails the whole fetch.
func (s *Scanner) fetch(ctx context.Context, sess Session, batch []candidate) ([]api.RawMessage, error) {
	var order []string
	byLocation := make(map[string][]api.MessageID)
	for _, c := range batch {
		if _, ok := byLocation[c.location]; !ok {
			order = append(order, c.location)
		}
		byLocation[c.location] = append(byLocation[c.location], c.id)
	}

	raws := make(map[candidate][]byte, len(batch))
	for _, location := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetching messages: %w", err)
		}

		if err := sess.Select(ctx, location); err != nil {
			s.logger.Warn("failed to reselect location, skipping its messages",
				"location", location, "count", len(byLocation[location]), "error", err)
			continue
		}

		for _, id := range byLocation[location] {
			raw, err := sess.Fetch(ctx, id)
			if err != nil {
				s.logger.Warn("failed to fetch message", "message_id", id, "location", location, "error", err)
				continue
			}
			raws[candidate{location: location, id: id}] = raw
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	messages := make([]api.RawMessage, 0, len(raws))
	for _, c := range batch {
		raw, ok := raws[candidate{location: c.location, id: c.id}]
		if !ok {
			continue
		}
		messages = append(messages, api.RawMessage{ID: c.id, Location: c.location, Raw: raw})
	}
	return messages, nil
}
