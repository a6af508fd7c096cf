package apitablev1

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fulldump/box"
)

var ErrBadRecordID = errors.New("bad record id")

func getRecord(ctx context.Context) (map[string]any, error) {

	s := GetServicer(ctx)

	tableName := box.GetUrlParameter(ctx, "tableName")
	recordID := strings.TrimSpace(box.GetUrlParameter(ctx, "recordId"))

	id, err := strconv.ParseUint(recordID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w '%s': must be an unsigned 32 bit integer", ErrBadRecordID, recordID)
	}

	r, err := s.GetRecord(tableName, uint32(id))
	if err != nil {
		return nil, err
	}

	return r.Map(), nil
}
