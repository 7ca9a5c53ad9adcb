package transfer

// WithRemove replaces the function used to delete consumed chunks.
func WithRemove(fn func(string) error) CoordinatorOption {
	return func(c *Coordinator) { c.remove = fn }
}
