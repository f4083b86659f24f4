package migrations

import (
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
	"github.com/satishbabariya/schemadelta/migrate/field"
	"github.com/satishbabariya/schemadelta/migrate/operation"
)

// GroupMatchGroup2Accept lets the second group accept a match, bounds group
// descriptions and stops admin deletion from cascading to the group.
var GroupMatchGroup2Accept = &descriptor.Migration{
	App:  App,
	Name: "0002_groupmatch_group2accept_and_more",
	Dependencies: []descriptor.Dependency{
		descriptor.Swappable(field.AuthUserModel),
		descriptor.DependsOn(App, "0001_initial"),
	},
	Operations: []operation.Operation{
		operation.AddField{
			Model: "groupmatch",
			Name:  "group2Accept",
			Field: field.BooleanField(field.Default(false)),
		},
		operation.AlterField{
			Model: "interestgroup",
			Name:  "description",
			Field: field.TextField(field.Default(""), field.MaxLength(500)),
		},
		operation.AlterField{
			Model: "interestgroup",
			Name:  "groupAdmin",
			Field: field.OneToOneField(
				field.ToSetting(field.AuthUserModel),
				field.DoNothing,
				field.RelatedName("admin"),
			),
		},
	},
}

// All returns the app's migrations in order.
func All() []*descriptor.Migration {
	return []*descriptor.Migration{Initial, GroupMatchGroup2Accept}
}
