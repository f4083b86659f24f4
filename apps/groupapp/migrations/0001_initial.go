// Package migrations holds the schema history of the group matching app.
package migrations

import (
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/operation"
	"github.com/satishbabariya/schemadelta/migrate/state"
)

// App is the app label.
const App = "groupApp"

// Initial creates InterestGroup and GroupMatch.
var Initial = &descriptor.Migration{
	App:     App,
	Name:    "0001_initial",
	Initial: true,
	Dependencies: []descriptor.Dependency{
		descriptor.Swappable(field.AuthUserModel),
	},
	Operations: []operation.Operation{
		operation.CreateModel{
			Name: "InterestGroup",
			Fields: []state.NamedField{
				{Name: "id", Field: field.AutoField()},
				{Name: "name", Field: field.CharField(100)},
				{Name: "quote", Field: field.CharField(255, field.Default(""))},
				{Name: "location", Field: field.CharField(100, field.Default(""))},
				{Name: "description", Field: field.TextField(field.Default(""))},
				{Name: "groupAdmin", Field: field.OneToOneField(
					field.ToSetting(field.AuthUserModel), field.Cascade,
				)},
			},
		},
		operation.CreateModel{
			Name: "GroupMatch",
			Fields: []state.NamedField{
				{Name: "id", Field: field.AutoField()},
				{Name: "group1", Field: field.ForeignKeyField(
					field.To(App, "InterestGroup"), field.Cascade, field.RelatedName("matches_as_group1"),
				)},
				{Name: "group2", Field: field.ForeignKeyField(
					field.To(App, "InterestGroup"), field.Cascade, field.RelatedName("matches_as_group2"),
				)},
				{Name: "group1Accept", Field: field.BooleanField(field.Default(false))},
				{Name: "created", Field: field.DateTimeField(field.Nullable())},
			},
		},
	},
}
