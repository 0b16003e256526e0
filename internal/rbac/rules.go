package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"listener": {
		"test:view",
		"session:start",
		"session:answer",
		"session:finish",
		"results:view",
	},
	"admin": {
		"*", // everything
	},
}
