package rewards

import "starchart/internal/models"

// Attribution says which reward a behavior event's points count toward.
// The zero value is ImplicitPrimary.
type Attribution struct {
	rewardID string
	explicit bool
}

// Explicit attributes points to one named reward only
func Explicit(rewardID string) Attribution {
	return Attribution{rewardID: rewardID, explicit: true}
}

// ImplicitPrimary attributes points to whichever reward is primary for the child
func ImplicitPrimary() Attribution {
	return Attribution{}
}

// AttributionOf reads the attribution stored on an event
func AttributionOf(event models.BehaviorEvent) Attribution {
	if event.RewardID != nil && *event.RewardID != "" {
		return Explicit(*event.RewardID)
	}
	return ImplicitPrimary()
}

// RewardID returns the explicit reward id, if any
func (a Attribution) RewardID() (string, bool) {
	return a.rewardID, a.explicit
}

// IsExplicit reports whether the attribution names a reward
func (a Attribution) IsExplicit() bool {
	return a.explicit
}

// Pointer converts the attribution to the nullable column form used on events
func (a Attribution) Pointer() *string {
	if !a.explicit {
		return nil
	}
	id := a.rewardID
	return &id
}

// countsToward reports whether points with this attribution belong to reward,
// given whether reward is the child's primary
func (a Attribution) countsToward(rewardID string, isPrimary bool) bool {
	if a.explicit {
		return a.rewardID == rewardID
	}
	return isPrimary
}
