package channel

// New constructs the Channel variant best suited to the declared
// producer/consumer topology: exactly one producer and one consumer
// selects the lock-free SPSC ring, any number of producers with
// exactly one consumer selects the lock-free CAS ring (MPSC), and
// every other topology (including multiple consumers) falls back to
// the mutex/condvar BufferedChannel.
func New(name string, producers, consumers int, cfg Config) (Channel, error) {
	switch {
	case producers <= 1 && consumers <= 1:
		return NewSPSC(name, cfg)
	case consumers <= 1:
		return NewMPSC(name, cfg)
	default:
		return NewBuffered(name, cfg), nil
	}
}
