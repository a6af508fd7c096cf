package apitablev1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/dbcextract/service"
)

func getTable(ctx context.Context) (*service.Table, error) {

	s := GetServicer(ctx)
	tableName := box.GetUrlParameter(ctx, "tableName")

	return s.GetTable(tableName)
}
