package looker

import (
	"fmt"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// endpoint describes how one content type maps onto the Looker 4.0 API.
// searchPath, when set, is the paginated search endpoint used for listing;
// types without one are listed via collectionPath in a single request.
type endpoint struct {
	collectionPath string
	searchPath     string
	folderParam    string // query parameter for server-side folder filtering
}

// endpoints is the per-type route table. Only dashboards and looks accept
// a folder filter at the API level.
var endpoints = map[types.ContentType]endpoint{
	types.TypeUser:          {collectionPath: "/users", searchPath: "/users/search"},
	types.TypeGroup:         {collectionPath: "/groups", searchPath: "/groups/search"},
	types.TypeRole:          {collectionPath: "/roles", searchPath: "/roles/search"},
	types.TypePermissionSet: {collectionPath: "/permission_sets"},
	types.TypeModelSet:      {collectionPath: "/model_sets"},
	types.TypeFolder:        {collectionPath: "/folders"},
	types.TypeLookMLModel:   {collectionPath: "/lookml_models"},
	types.TypeLook:          {collectionPath: "/looks", searchPath: "/looks/search", folderParam: "folder_id"},
	types.TypeDashboard:     {collectionPath: "/dashboards", searchPath: "/dashboards/search", folderParam: "folder_id"},
	types.TypeBoard:         {collectionPath: "/boards"},
	types.TypeScheduledPlan: {collectionPath: "/scheduled_plans"},
}

// routeFor resolves the endpoint for a content type. EXPLORE has no
// collection route of its own; the REST client flattens it out of the
// LookML model listing instead.
func routeFor(ct types.ContentType) (endpoint, error) {
	ep, ok := endpoints[ct]
	if !ok {
		return endpoint{}, fmt.Errorf("no API route for content type %s", ct)
	}
	return ep, nil
}
