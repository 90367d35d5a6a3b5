package channel

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store holds every channel of the process. It is safe for concurrent use by
// workers of different buses.
type Store struct {
	channels *xsync.MapOf[ID, *Channel]
}

func NewStore() *Store {
	return &Store{channels: xsync.NewMapOf[ID, *Channel]()}
}

// Channel returns the channel for id, creating it on first use.
func (s *Store) Channel(id ID) *Channel {
	ch, _ := s.channels.LoadOrCompute(id, func() *Channel { return New(id) })
	return ch
}

// Lookup returns the channel for id without creating it.
func (s *Store) Lookup(id ID) (*Channel, bool) {
	return s.channels.Load(id)
}

// Remove drops one channel.
func (s *Store) Remove(id ID) {
	s.channels.Delete(id)
}

// RemoveComponent drops every channel owned by component.
func (s *Store) RemoveComponent(component string) {
	s.channels.Range(func(id ID, _ *Channel) bool {
		if id.Component == component {
			s.channels.Delete(id)
		}
		return true
	})
}

// SwapProcessImage makes every channel's next value its current value.
func (s *Store) SwapProcessImage() {
	s.channels.Range(func(_ ID, ch *Channel) bool {
		ch.swap()
		return true
	})
}

// IDs returns all channel ids, sorted for stable output.
func (s *Store) IDs() []ID {
	ids := make([]ID, 0, s.channels.Size())
	s.channels.Range(func(id ID, _ *Channel) bool {
		ids = append(ids, id)
		return true
	})
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Component != ids[j].Component {
			return ids[i].Component < ids[j].Component
		}
		return ids[i].Channel < ids[j].Channel
	})
	return ids
}

func (s *Store) Len() int {
	return s.channels.Size()
}
