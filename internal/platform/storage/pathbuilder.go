package storage

import (
	"fmt"
	"strings"
	"time"
)

// receiptStampLayout sorts lexically in print order.
const receiptStampLayout = "20060102T150405.000Z"

// ReceiptPrefix is the folder holding every printed receipt of one order.
func ReceiptPrefix(root, orderID string) (string, error) {
	id, err := validateSegment("orderID", orderID)
	if err != nil {
		return "", err
	}
	root = strings.Trim(strings.TrimSpace(root), "/")
	if root == "" {
		return fmt.Sprintf("orders/%s/", id), nil
	}
	return fmt.Sprintf("%s/orders/%s/", root, id), nil
}

// ReceiptObjectPath names one printed receipt: <root>/orders/<orderID>/<stamp>.html.
func ReceiptObjectPath(root, orderID string, printedAt time.Time) (string, error) {
	prefix, err := ReceiptPrefix(root, orderID)
	if err != nil {
		return "", err
	}
	if printedAt.IsZero() {
		return "", fmt.Errorf("storage: printedAt is required")
	}
	return prefix + printedAt.UTC().Format(receiptStampLayout) + ".html", nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
