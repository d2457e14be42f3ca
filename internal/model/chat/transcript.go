package chat

// Transcript is the ordered conversation. Insertion order is conversation
// order; entries are never reordered.
type Transcript []Message

// Append adds m to the end and returns its index.
func (t *Transcript) Append(m Message) int {
	*t = append(*t, m)
	return len(*t) - 1
}

// IndexOf returns the position of the message with id, or -1.
func (t Transcript) IndexOf(id string) int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the transcript.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		out[i] = m.Clone()
	}
	return out
}
