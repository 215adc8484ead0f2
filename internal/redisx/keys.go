package redisx

import (
	"fmt"
	"time"
)

const (
	// Timing record per order: timing:order:{order_id} -> JSON timing.Record
	KeyTimingRecord = "timing:order:%s"

	// Set of every tracked order id
	KeyTimingIndex = "timing:orders"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Status changes waiting for their order: timing:parked:{order_id} -> list of statuses
	KeyParked = "timing:parked:%s"
)

var (
	TTLDedup  = 48 * time.Hour
	TTLParked = 24 * time.Hour
)

func TimingRecordKey(orderID string) string { return fmt.Sprintf(KeyTimingRecord, orderID) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }

func ParkedKey(orderID string) string { return fmt.Sprintf(KeyParked, orderID) }
