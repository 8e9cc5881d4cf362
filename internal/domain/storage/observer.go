package storage

import "time"

// StorageObserver receives engine metrics. monitoring.Metrics implements it.
type StorageObserver interface {
	ObserveStorageOp(op, status string, duration time.Duration)
	SetStorageQueueDepth(resource string, depth int)
	SetStorageResources(count int)
}

type nopObserver struct{}

func (nopObserver) ObserveStorageOp(string, string, time.Duration) {}
func (nopObserver) SetStorageQueueDepth(string, int)               {}
func (nopObserver) SetStorageResources(int)                        {}
