package warehouses

import (
	"fmt"
	"strings"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

func (s *Service) validate(w Warehouse) error {
	if w.CompanyID <= 0 {
		return fmt.Errorf("%w: company", shared.ErrRequiredField)
	}
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name", shared.ErrRequiredField)
	}
	return nil
}
