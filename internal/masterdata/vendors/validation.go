package vendors

import (
	"fmt"
	"strings"

	"github.com/aegisfm/aegisfm/internal/masterdata/shared"
)

func (s *Service) validate(v Vendor) error {
	if v.CompanyID <= 0 {
		return fmt.Errorf("%w: company", shared.ErrRequiredField)
	}
	if strings.TrimSpace(v.Code) == "" {
		return fmt.Errorf("%w: vendor code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: vendor name", shared.ErrRequiredField)
	}
	if v.PaymentTermDays < 0 {
		return fmt.Errorf("%w: payment term days must not be negative", shared.ErrValidation)
	}
	return nil
}
