package indexer

// Event is one progress report. Fraction is meaningful only when Known.
type Event struct {
	Message  string
	Fraction float64
	Known    bool
}

// ProgressFunc observes indexing progress. Within one file run the known
// fractions never decrease. A nil ProgressFunc discards events.
type ProgressFunc func(Event)

func (f ProgressFunc) report(message string, fraction float64) {
	if f != nil {
		f(Event{Message: message, Fraction: fraction, Known: true})
	}
}

func (f ProgressFunc) reportUnknown(message string) {
	if f != nil {
		f(Event{Message: message})
	}
}

// scaled maps a nested file run onto slot i of n in a folder scan
func (f ProgressFunc) scaled(i, n int) ProgressFunc {
	if f == nil {
		return nil
	}
	return func(e Event) {
		fraction := float64(i) / float64(n)
		if e.Known {
			fraction = (float64(i) + e.Fraction) / float64(n)
		}
		f(Event{Message: e.Message, Fraction: fraction, Known: true})
	}
}
