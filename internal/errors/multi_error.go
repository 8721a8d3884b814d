package errors

// MultiError collects errors while a batch of work keeps going.
//
// Compiler passes and option lists append to it and report everything at once.
type MultiError []error

// Append appends an error to the collection. Nil errors are ignored.
func (e MultiError) Append(err error) MultiError {
	if err == nil {
		return e
	}
	return append(e, err)
}

// Join combines all errors into a single error.
func (e MultiError) Join() error {
	if len(e) == 0 {
		return nil
	}
	return Join(e...)
}

// Wrap joins errors and then wraps the joined error with a message.
//
// Returns nil if there are no errors.
func (e MultiError) Wrap(msg string) error {
	if len(e) == 0 {
		return nil
	}
	return Wrap(e.Join(), msg)
}

// Wrapf joins errors and then wraps the joined error with a formatted message.
//
// Returns nil if there are no errors.
func (e MultiError) Wrapf(msg string, args ...any) error {
	if len(e) == 0 {
		return nil
	}
	return Wrapf(e.Join(), msg, args...)
}
