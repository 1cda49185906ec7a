package patient

import (
	"github.com/carecenter/dashboard/internal/platform/crud"
)

func NewHandler(svc *Service) *crud.Handler[Patient] {
	return crud.NewHandler[Patient](Definition, svc)
}
