package firewall

// FakeBackend is an in-memory Backend recording every applied policy and
// reset call, used to unit test policy rendering and engine bookkeeping
// without a real OS (spec §9: "a fake backend recording the rule set").
type FakeBackend struct {
	Applied  []Policy
	Resets   int
	ApplyErr error
	ResetErr error
}

func (f *FakeBackend) Apply(p Policy) error {
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	f.Applied = append(f.Applied, p)
	return nil
}

func (f *FakeBackend) Reset() error {
	f.Resets++
	if f.ResetErr != nil {
		return f.ResetErr
	}
	return nil
}

// Last returns the most recently applied policy, if any.
func (f *FakeBackend) Last() (Policy, bool) {
	if len(f.Applied) == 0 {
		return Policy{}, false
	}
	return f.Applied[len(f.Applied)-1], true
}
