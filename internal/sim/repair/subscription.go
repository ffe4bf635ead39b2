package repair

// Subscription is the per-building set of agents currently funding a repair.
// Members keep insertion order; charging and the concurrency bonus depend on it.
type Subscription struct {
	members []string
	index   map[string]int

	countdown int
}

func NewSubscription() *Subscription {
	return &Subscription{index: map[string]int{}}
}

// RestoreSubscription rebuilds a subscription from persisted state.
// Duplicate and empty ids are dropped, keeping the first occurrence.
func RestoreSubscription(members []string, countdown int) *Subscription {
	s := NewSubscription()
	for _, id := range members {
		if id == "" {
			continue
		}
		s.add(id)
	}
	if countdown < 0 {
		countdown = 0
	}
	s.countdown = countdown
	return s
}

func (s *Subscription) Contains(agentID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[agentID]
	return ok
}

func (s *Subscription) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Members returns a copy in insertion order.
func (s *Subscription) Members() []string {
	if s == nil || len(s.members) == 0 {
		return nil
	}
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

func (s *Subscription) Countdown() int {
	if s == nil {
		return 0
	}
	return s.countdown
}

func (s *Subscription) add(agentID string) bool {
	if _, ok := s.index[agentID]; ok {
		return false
	}
	s.index[agentID] = len(s.members)
	s.members = append(s.members, agentID)
	return true
}

func (s *Subscription) remove(agentID string) bool {
	i, ok := s.index[agentID]
	if !ok {
		return false
	}
	copy(s.members[i:], s.members[i+1:])
	s.members = s.members[:len(s.members)-1]
	delete(s.index, agentID)
	for j := i; j < len(s.members); j++ {
		s.index[s.members[j]] = j
	}
	return true
}

func (s *Subscription) clear() {
	s.members = s.members[:0]
	for k := range s.index {
		delete(s.index, k)
	}
}
