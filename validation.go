package syncano

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// instanceNameRules apply to the instance every scoped model belongs to.
var instanceNameRules = []validation.Rule{
	validation.Required,
	validation.Length(5, 64),
}

// permissionLevels are the object permission levels of data objects.
var permissionLevels = []any{"none", "read", "write", "full"}
