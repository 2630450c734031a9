package shared

import "fmt"

// StockViewVersionKey builds the redis key holding the cached stock view version.
func StockViewVersionKey(companyID int64) string {
	return fmt.Sprintf("stock:%d:view:version", companyID)
}
