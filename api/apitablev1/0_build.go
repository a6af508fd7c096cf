package apitablev1

import (
	"github.com/fulldump/box"

	"github.com/fulldump/dbcextract/service"
)

func BuildV1Table(v1 *box.R, s service.Servicer) *box.R {

	tables := v1.Resource("/tables").
		WithActions(
			box.Get(listTables),
		)

	v1.Resource("/tables/{tableName}").
		WithActions(
			box.Get(getTable),
			box.ActionPost(find),
			box.ActionPost(hotfixes),
		)

	v1.Resource("/tables/{tableName}/records/{recordId}").
		WithActions(
			box.Get(getRecord),
		)

	return tables
}
