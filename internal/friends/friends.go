// Package friends answers who is friends with whom.
package friends

import (
	"context"
	"fmt"
	"slices"

	"github.com/DoyleJ11/word-duel-backend/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Directory interface {
	FriendsOf(ctx context.Context, userID string) ([]string, error)
}

func AreFriends(ctx context.Context, d Directory, a, b string) (bool, error) {
	ids, err := d.FriendsOf(ctx, a)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, b), nil
}

// Static is an in-memory, symmetric friend graph.
type Static struct {
	graph map[string][]string
}

func NewStatic(pairs [][2]string) *Static {
	s := &Static{graph: make(map[string][]string)}
	for _, p := range pairs {
		s.link(p[0], p[1])
		s.link(p[1], p[0])
	}
	return s
}

func (s *Static) link(a, b string) {
	if a == "" || b == "" || a == b || slices.Contains(s.graph[a], b) {
		return
	}
	s.graph[a] = append(s.graph[a], b)
}

func (s *Static) FriendsOf(_ context.Context, userID string) ([]string, error) {
	return slices.Clone(s.graph[userID]), nil
}

type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) FriendsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).
		Model(&store.Friendship{}).
		Where("user_id = ?", userID).
		Order("friend_id").
		Pluck("friend_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("loading friends of %s: %w", userID, err)
	}
	return ids, nil
}

// Add links a and b in both directions. Existing links are left alone.
func (g *Gorm) Add(ctx context.Context, a, b string) error {
	rows := []store.Friendship{{UserID: a, FriendID: b}, {UserID: b, FriendID: a}}
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("adding friendship %s/%s: %w", a, b, err)
	}
	return nil
}
