package flow

// Sink receives the final, unwrapped output values of a leaf operator. It
// is an external collaborator; the engine only hands values over and never
// inspects what the sink does with them.
type Sink interface {
	Write(value any) error
	Close() error
}

// Collect is a Sink gathering everything written to it. Meant for tests and
// small batch jobs.
type Collect struct {
	Values []any
	closed bool
}

var _ Sink = (*Collect)(nil)

func (c *Collect) Write(value any) error {
	c.Values = append(c.Values, value)
	return nil
}

func (c *Collect) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether the sink has been handed its full output.
func (c *Collect) Closed() bool {
	return c.closed
}
