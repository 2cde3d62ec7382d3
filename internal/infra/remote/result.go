package remote

// Result is the outcome of one executed query.
// HasData separates "no data" from present-but-empty data such as an empty slice.
type Result[T any] struct {
	Data    T
	HasData bool
	Err     *ClassifiedError
	// Partial is set by ExecuteBatched when some chunks failed but others returned data.
	Partial bool
}

// OK reports whether the call produced data.
func (r Result[T]) OK() bool {
	return r.HasData
}

// Unpack returns the data or the classified error as a plain error.
func (r Result[T]) Unpack() (T, error) {
	if r.Err != nil {
		var zero T
		return zero, r.Err
	}
	return r.Data, nil
}
