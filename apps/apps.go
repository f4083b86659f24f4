// Package apps collects the migrations shipped with the binary.
package apps

import (
	auth "github.com/satishbabariya/schemadelta/apps/auth/migrations"
	groupapp "github.com/satishbabariya/schemadelta/apps/groupapp/migrations"
	"github.com/satishbabariya/schemadelta/migrate/descriptor"
)

// Migrations returns every bundled migration.
func Migrations() []*descriptor.Migration {
	var all []*descriptor.Migration
	all = append(all, auth.All()...)
	all = append(all, groupapp.All()...)
	return all
}

// Registry returns a registry holding the bundled migrations plus extra.
func Registry(extra ...*descriptor.Migration) (*descriptor.Registry, error) {
	reg := descriptor.NewRegistry()
	if err := reg.Register(Migrations()...); err != nil {
		return nil, err
	}
	if err := reg.Register(extra...); err != nil {
		return nil, err
	}
	return reg, nil
}
