package enforcement

import (
	"bindery/internal/rules"
)

// Binding ties an action name to the (rule type, resource) pair the
// coordinator filters the catalog by.
type Binding struct {
	Type     rules.Type
	Resource string
}

// defaultActionMap is the static action table. Actions absent from the map
// are not policy-controlled: the coordinator logs and allows them.
var defaultActionMap = map[string]Binding{
	"create_collection": {Type: rules.TypeFeatureLimit, Resource: "collections"},
	"add_card":          {Type: rules.TypeFeatureLimit, Resource: "cards_per_collection"},
	"create_share_link": {Type: rules.TypeFeatureLimit, Resource: "share_links"},
	"api_call":          {Type: rules.TypeRateLimit, Resource: "api_calls"},
	"send_message":      {Type: rules.TypeRateLimit, Resource: "direct_messages"},
	"bulk_import":       {Type: rules.TypeRateLimit, Resource: "bulk_imports"},
	"add_attachment":    {Type: rules.TypeContentLimit, Resource: "attachment"},
	"access_admin":      {Type: rules.TypeAccessControl, Resource: "admin_dashboard"},
	"share_with_user":   {Type: rules.TypeAccessControl, Resource: "sharing"},
	"edit_collection":   {Type: rules.TypeTimeBased, Resource: "collection_editing"},
}

// DefaultActionMap returns a copy of the built-in action table so callers
// can extend it without touching the shared map.
func DefaultActionMap() map[string]Binding {
	m := make(map[string]Binding, len(defaultActionMap))
	for k, v := range defaultActionMap {
		m[k] = v
	}
	return m
}
