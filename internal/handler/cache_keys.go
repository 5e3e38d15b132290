package handler

// CacheKeys derives read-through keys and invalidation patterns from a
// namespace prefix such as "usersvc:".
type CacheKeys struct {
	Prefix string
}

// List is the key of the full listing
func (k CacheKeys) List() string {
	return k.Prefix + "users:list"
}

// ByID is the key of one record
func (k CacheKeys) ByID(id string) string {
	return k.Prefix + "users:id:" + id
}

// ListPattern matches every listing key; creates only affect listings
func (k CacheKeys) ListPattern() string {
	return k.Prefix + "users:list*"
}

// AllPattern matches every user key; updates and deletes affect both
// listings and single records
func (k CacheKeys) AllPattern() string {
	return k.Prefix + "users:*"
}
