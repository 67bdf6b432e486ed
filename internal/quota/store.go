package quota

import "context"

// Store persists quota records. Apply must give fn exclusive access to the
// client's record for the duration of the call and persist the mutated
// record only when fn returns nil. An unknown client reads as a zero Record.
type Store interface {
	Load(ctx context.Context, clientID string) (Record, error)
	Apply(ctx context.Context, clientID string, fn func(*Record) error) (Record, error)
}
