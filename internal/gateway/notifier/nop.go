package notifier

// Nop discards every message. Used when no channel is configured and in
// tests.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
