package handlers

import (
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"studyseat-system/internal/status"
)

// fail renders a classified error as {code, message} with the HTTP status
// the error taxonomy prescribes. Unclassified errors surface as opaque 500s.
func fail(e *core.RequestEvent, err error) error {
	code := status.Code(err)
	if code == "" {
		return apis.NewInternalServerError("something went wrong", err)
	}
	return e.JSON(status.HTTPStatus(err), map[string]string{
		"code":    code,
		"message": err.Error(),
	})
}

// pathInt parses a numeric path parameter; 0 with ok=false when malformed.
func pathInt(e *core.RequestEvent, name string) (int, bool) {
	n, err := strconv.Atoi(e.Request.PathValue(name))
	if err != nil {
		return 0, false
	}
	return n, true
}
