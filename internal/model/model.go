// Package model holds the persisted marketplace relations and their enums.
package model

// All returns every model in migration order
func All() []interface{} {
	return []interface{}{
		&Company{},
		&User{},
		&UserPermission{},
		&Container{},
		&CompanyContainerAssignment{},
	}
}
