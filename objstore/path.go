package objstore

import "fmt"

func formatPath(namespaceID, tableID, partitionID int64, fileUUID string) string {
	return fmt.Sprintf("%d/%d/%d/%s.parquet", namespaceID, tableID, partitionID, fileUUID)
}
