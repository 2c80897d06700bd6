package pvm

// ResolveAttribution returns the activity instance a variable write on exe
// belongs to.
//
// A local write belongs to wherever the token physically sits, so the result
// is exe's own activity instance id. An inherited write belongs to the nearest
// enclosing scope: the walk starts at exe itself and returns the id of the
// first execution that is a scope.
func ResolveAttribution(exe *Execution, isLocalWrite bool) string {
	if exe == nil {
		return ""
	}
	if isLocalWrite {
		return exe.activityInstanceID
	}
	for n := exe; n != nil; n = n.parent {
		if n.IsScope() {
			return n.activityInstanceID
		}
	}
	return ""
}

// ParentActivityInstanceID returns the activity instance enclosing the one
// exe currently has open: the instance of the nearest scope above exe.
func ParentActivityInstanceID(exe *Execution) string {
	if exe == nil || exe.parent == nil {
		return ""
	}
	return ResolveAttribution(exe.parent, false)
}
