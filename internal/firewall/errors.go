package firewall

import "fmt"

// BlockingApplication identifies the process holding a competing WFP
// transaction lock on Windows. Per SPEC_FULL.md §9 open question 3, this
// repo never populates it — the upstream source has an open TODO to report
// it and this implementation preserves that gap rather than inventing data.
type BlockingApplication struct {
	Name string
	Pid  uint32
}

// ErrLocked is returned by Apply when another filter engine transaction
// holds the lock (Windows WFP only).
type ErrLocked struct {
	Blocking *BlockingApplication
}

func (e *ErrLocked) Error() string {
	if e.Blocking != nil {
		return fmt.Sprintf("firewall transaction lock held by %s (pid %d)", e.Blocking.Name, e.Blocking.Pid)
	}
	return "firewall transaction lock held by another application"
}
