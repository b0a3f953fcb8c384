package sync

import (
	"strings"
	"time"

	"github.com/marcus/carelog/internal/models"
)

// Candidate is one side of a last-writer-wins contest.
type Candidate struct {
	Timestamp time.Time
	Version   int64
	ActorID   string
}

// Tier identifies which comparison decided a contest.
type Tier int

const (
	TierTimestamp Tier = iota
	TierVersion
	TierActor
)

// Compare orders two candidates by timestamp, then version, then actor id.
// It returns a positive number when a wins, negative when b wins and 0 when
// the candidates are indistinguishable.
func Compare(a, b Candidate) int {
	c, _ := compare(a, b)
	return c
}

func compare(a, b Candidate) (int, Tier) {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c, TierTimestamp
	}
	if a.Version != b.Version {
		if a.Version > b.Version {
			return 1, TierVersion
		}
		return -1, TierVersion
	}
	return strings.Compare(a.ActorID, b.ActorID), TierActor
}

// Verdict is the outcome of a local-versus-remote contest.
type Verdict struct {
	Winner models.Winner
	Reason string
	Tier   Tier
}

// Decide picks the winner between a local operation and the remote state.
// The remote side wins when the candidates are indistinguishable.
func Decide(local, remote Candidate) Verdict {
	c, tier := compare(local, remote)
	v := Verdict{Winner: models.WinnerRemote, Tier: tier}
	if c > 0 {
		v.Winner = models.WinnerLocal
	}
	switch tier {
	case TierTimestamp:
		v.Reason = models.ReasonRemoteNewer
		if v.Winner == models.WinnerLocal {
			v.Reason = models.ReasonLocalNewer
		}
	case TierVersion:
		v.Reason = models.ReasonRemoteVersionHigher
		if v.Winner == models.WinnerLocal {
			v.Reason = models.ReasonLocalVersionHigher
		}
	default:
		v.Reason = models.ReasonActorTiebreak
	}
	return v
}
