package network

import "fmt"

// SyncStrategy copies knowledge from the policy parameter set into the
// target parameter set. Both sets must come from structurally identical
// networks; parameters are matched positionally.
type SyncStrategy interface {
	Sync(target, policy []*Param)
}

// HardSync overwrites every target parameter with the policy value.
type HardSync struct{}

func (HardSync) Sync(target, policy []*Param) {
	checkAligned(target, policy)
	for i, tp := range target {
		tp.W.Copy(policy[i].W)
	}
}

// SoftSync blends target <- tau*policy + (1-tau)*target. Tau 1 is a hard
// copy, tau 0 leaves the target untouched.
type SoftSync struct {
	Tau float64
}

func (s SoftSync) Sync(target, policy []*Param) {
	checkAligned(target, policy)
	for i, tp := range target {
		w := tp.W.RawMatrix().Data
		pw := policy[i].W.RawMatrix().Data
		for j := range w {
			w[j] = s.Tau*pw[j] + (1-s.Tau)*w[j]
		}
	}
}

func checkAligned(target, policy []*Param) {
	if len(target) != len(policy) {
		panic(fmt.Sprintf("network: sync over %d target and %d policy params", len(target), len(policy)))
	}
	for i := range target {
		tr, tc := target[i].W.Dims()
		pr, pc := policy[i].W.Dims()
		if tr != pr || tc != pc {
			panic(fmt.Sprintf("network: sync param %q is %dx%d vs %dx%d", target[i].Name, tr, tc, pr, pc))
		}
	}
}
