// Package migrations holds the schema history of the auth app, which
// provides the default user model.
package migrations

import (
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/operation"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// App is the app label.
const App = "auth"

// Initial creates the User model.
var Initial = &descriptor.Migration{
	App:     App,
	Name:    "0001_initial",
	Initial: true,
	Operations: []operation.Operation{
		operation.CreateModel{
			Name: "User",
			Fields: []state.NamedField{
				{Name: "id", Field: field.AutoField()},
				{Name: "username", Field: field.CharField(150, field.Unique())},
				{Name: "email", Field: field.CharField(254, field.Default(""))},
				{Name: "is_active", Field: field.BooleanField(field.Default(true))},
			},
		},
	},
}

// All returns the app's migrations in order.
func All() []*descriptor.Migration {
	return []*descriptor.Migration{Initial}
}
