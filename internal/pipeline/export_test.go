package pipeline

// SetRunIDFunc replaces the output directory naming for tests.
func (t *ProductTransformer) SetRunIDFunc(f func() string) {
	t.newRunID = f
}
