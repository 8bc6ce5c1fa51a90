package ingest

import (
	"fmt"

	"github.com/NicoLopezz/nanocardV2.0-backend-sub001/internal/domain"
)

// maxParentHops bounds transitive parent chasing so a reference cycle in
// provider data cannot loop forever.
const maxParentHops = 5

// Identity is the stable ledger identity derived for one movement.
type Identity struct {
	EntryID string
	CardID  string
	// ParentID is the immediate parent movement id when the card was
	// inherited from a related movement, empty otherwise.
	ParentID string
}

// Resolver derives entry identities for a fetched window of movements. It
// holds an index over the whole window so fee/child movements can find
// their parent regardless of which insert batch either lands in. It never
// touches the store.
type Resolver struct {
	byID map[string]domain.Movement
}

func NewResolver(movements []domain.Movement) *Resolver {
	byID := make(map[string]domain.Movement, len(movements))
	for _, m := range movements {
		byID[m.ID] = m
	}
	return &Resolver{byID: byID}
}

// Resolve returns the entry identity for a movement. A movement with a
// direct card reference resolves to itself; one without follows its parent
// chain until a card-bearing ancestor is found. Movements that resolve to
// no card at all are not attributable and must be skipped by the caller.
func (r *Resolver) Resolve(m domain.Movement) (Identity, error) {
	if m.CardID != "" {
		return Identity{EntryID: m.ID, CardID: m.CardID}, nil
	}

	parentID := m.ParentID
	cur := m
	for hop := 0; hop < maxParentHops; hop++ {
		if cur.ParentID == "" {
			break
		}
		parent, ok := r.byID[cur.ParentID]
		if !ok {
			break
		}
		if parent.CardID != "" {
			return Identity{EntryID: m.ID, CardID: parent.CardID, ParentID: parentID}, nil
		}
		cur = parent
	}

	return Identity{}, fmt.Errorf("movement %s: %w", m.ID, domain.ErrUnresolvableAccount)
}
