package bot

// Store exposes chatbot lookup for HTTP handlers.
type Store interface {
	List() []Profile
	FindByID(uuid string) (Profile, bool)
	FindByAPIKey(key string) (Profile, bool)
	Default() (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns every profile.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by uuid.
func (s *MemoryStore) FindByID(uuid string) (Profile, bool) {
	for _, item := range s.items {
		if item.UUID == uuid {
			return item, true
		}
	}
	return Profile{}, false
}

// FindByAPIKey looks up the profile owning key. An empty key never matches.
func (s *MemoryStore) FindByAPIKey(key string) (Profile, bool) {
	if key == "" {
		return Profile{}, false
	}
	for _, item := range s.items {
		if item.APIKey == key {
			return item, true
		}
	}
	return Profile{}, false
}

// Default returns the first profile, used when a request carries no key.
func (s *MemoryStore) Default() (Profile, bool) {
	if len(s.items) == 0 {
		return Profile{}, false
	}
	return s.items[0], true
}
