package machine

import (
	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewHandler(svc *Service) *crud.Handler[Machine] {
	return crud.NewHandler[Machine](Definition, svc)
}
