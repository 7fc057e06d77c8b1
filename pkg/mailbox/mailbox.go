// Package mailbox locates and retrieves candidate bank-alert messages from a
// remote mailbox. Backends implement Dialer and Session; Scanner applies the
// location fallback, sender union and batch cap on top of them.
package mailbox

import (
	"context"
	"errors"
	"strings"

	"github.com/finduo/finduo-sync/pkg/api"
)

// DefaultLimit is the number of most recent candidate messages fetched per scan.
const DefaultLimit = 30

var (
	// ErrConnection is returned when the mailbox cannot be reached or the
	// credentials are missing or rejected. It aborts the whole scan.
	ErrConnection = errors.New("mailbox connection failed")

	// ErrLocationNotFound is returned by Session.Select for unknown locations.
	ErrLocationNotFound = errors.New("mailbox location not found")
)

// Session is an authenticated mailbox connection.
// Search and Fetch operate on the most recently selected location.
type Session interface {
	// Select makes location the current location.
	Select(ctx context.Context, location string) error
	// Search returns the IDs of messages in the current location sent by sender.
	Search(ctx context.Context, sender string) ([]api.MessageID, error)
	// Fetch returns the full raw RFC 5322 bytes of a message in the current location.
	Fetch(ctx context.Context, id api.MessageID) ([]byte, error)
	Close() error
}

// MailboxWideIDs is implemented by sessions whose message IDs name the same
// message in every location, such as Gmail API message IDs. Sessions without
// it number messages per location (IMAP UIDs, mbox positions).
type MailboxWideIDs interface {
	MailboxWideIDs() bool
}

// Dialer opens a Session. Connection and authentication failures must wrap
// ErrConnection.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Session, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Session, error) {
	return f(ctx)
}

var locationPrefixes = [2]string{"[Gmail]/", "[Google Mail]/"}

// AlternateLocation returns the name of location under the other Gmail
// naming convention, e.g. "[Gmail]/All Mail" for "[Google Mail]/All Mail".
// It reports false when location has no alternate form.
func AlternateLocation(location string) (string, bool) {
	for i, prefix := range locationPrefixes {
		if rest, ok := strings.CutPrefix(location, prefix); ok {
			return locationPrefixes[1-i] + rest, true
		}
	}
	return "", false
}
