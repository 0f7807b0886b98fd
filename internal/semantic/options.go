package semantic

import (
	"context"
	"fmt"

	"github.com/hyperjump/semdex/internal/models"
	"go.uber.org/zap"
)

// RemovalPolicy selects how Remove keeps vectors consistent with the catalog.
type RemovalPolicy int

const (
	// RemovalRebuild deletes the entry and re-encodes every remaining document.
	RemovalRebuild RemovalPolicy = iota
	// RemovalTombstone marks the entry dead and compacts once the dead ratio
	// exceeds the compaction threshold. Nothing is re-encoded.
	RemovalTombstone
)

func (p RemovalPolicy) String() string {
	switch p {
	case RemovalRebuild:
		return "rebuild"
	case RemovalTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("RemovalPolicy(%d)", int(p))
	}
}

// ParseRemovalPolicy parses "rebuild" or "tombstone".
func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch s {
	case "rebuild", "":
		return RemovalRebuild, nil
	case "tombstone":
		return RemovalTombstone, nil
	default:
		return 0, fmt.Errorf("%w: unknown removal policy %q", ErrInvalidArgument, s)
	}
}

// Store persists the catalog so the index can be rebuilt after a restart. Vectors are
// never persisted; they are re-derived from content on Restore. Every method is called
// while the index holds its write lock, before the in-memory change is committed.
type Store interface {
	ReplaceAll(ctx context.Context, docs []*models.Document) error
	Append(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*models.Document, error)
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// WithStore persists every mutation to s.
func WithStore(s Store) Option {
	return func(i *Index) { i.store = s }
}

// WithRemovalPolicy sets the removal policy.
func WithRemovalPolicy(p RemovalPolicy) Option {
	return func(i *Index) { i.removal = p }
}

// WithCompactionThreshold sets the dead-entry ratio above which tombstones are compacted.
func WithCompactionThreshold(ratio float64) Option {
	return func(i *Index) {
		if ratio > 0 && ratio <= 1 {
			i.compactionThreshold = ratio
		}
	}
}

// WithClusterIterations sets the k-means iteration budget.
func WithClusterIterations(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.clusterIterations = n
		}
	}
}

// WithSeed sets the k-means seeding seed.
func WithSeed(seed int64) Option {
	return func(i *Index) { i.seed = seed }
}
