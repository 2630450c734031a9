package devices

import (
	"fmt"
	"strings"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

func (s *Service) validate(d Device) error {
	if d.CompanyID <= 0 {
		return fmt.Errorf("%w: company", shared.ErrRequiredField)
	}
	if strings.TrimSpace(d.Code) == "" {
		return fmt.Errorf("%w: device code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: device name", shared.ErrRequiredField)
	}
	return nil
}
