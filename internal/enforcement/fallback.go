package enforcement

import (
	"fmt"
)

// Fallback ceilings for callers without an established identity. They are
// deliberately independent of the catalog: the product keeps working
// offline with generous local bounds, and nothing is persisted.
const (
	fallbackCollectionLimit = 10
	fallbackCardLimit       = 500
	fallbackShareLinkLimit  = 3
	fallbackAttachmentLimit = 20
)

// fallbackCeilings maps feature-limited actions to their local ceilings.
var fallbackCeilings = map[string]int64{
	"create_collection": fallbackCollectionLimit,
	"add_card":          fallbackCardLimit,
	"create_share_link": fallbackShareLinkLimit,
	"add_attachment":    fallbackAttachmentLimit,
}

// fallbackRequiresAccount lists actions that have no meaning without an
// identity; the fallback denies these outright.
var fallbackRequiresAccount = map[string]bool{
	"send_message":    true,
	"share_with_user": true,
	"access_admin":    true,
}

// FallbackPolicy is the static decision table consulted for unauthenticated
// callers. It never touches the catalog or the usage store.
type FallbackPolicy struct{}

func NewFallbackPolicy() *FallbackPolicy {
	return &FallbackPolicy{}
}

func (p *FallbackPolicy) Check(action string, caller Caller) Result {
	if fallbackRequiresAccount[action] {
		return deny(fmt.Sprintf("%s requires an account", action))
	}

	if ceiling, ok := fallbackCeilings[action]; ok {
		count := caller.CurrentCount
		if action == "add_attachment" && caller.Content != nil {
			count = int64(caller.Content.Count)
		}
		if count >= ceiling {
			return deny(fmt.Sprintf("local limit reached: maximum %d allowed", ceiling))
		}
		return allow()
	}

	// Rate-limited and unmapped actions are always allowed locally.
	return allow()
}
