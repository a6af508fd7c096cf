package apitablev1

import (
	"context"

	"github.com/fulldump/dbcextract/service"
)

func listTables(ctx context.Context) ([]*service.Table, error) {
	return GetServicer(ctx).ListTables()
}
