package relay

// Room pairs at most two clients. Host is the member that was waiting when
// the other joined, so it is the one told to initiate the call.
type Room struct {
	ID string

	Host  *Client
	Guest *Client
}

// Size returns how many members the room holds.
func (r *Room) Size() int {
	n := 0
	if r.Host != nil {
		n++
	}
	if r.Guest != nil {
		n++
	}
	return n
}

// Other returns the member that is not c, or nil.
func (r *Room) Other(c *Client) *Client {
	switch c {
	case r.Host:
		return r.Guest
	case r.Guest:
		return r.Host
	}
	return nil
}

// remove drops c from the room. A remaining guest is promoted to host so the
// next joiner pairs against it.
func (r *Room) remove(c *Client) {
	switch c {
	case r.Host:
		r.Host, r.Guest = r.Guest, nil
	case r.Guest:
		r.Guest = nil
	}
}
