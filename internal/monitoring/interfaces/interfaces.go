package interfaces

import (
	"context"
	"time"
)

type CycleReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type SchedulerInterface interface {
	Init()
	Stop()
	RunCycle(ctx context.Context, now time.Time) (CycleReport, error)
	CheckNow(ctx context.Context, monitorID string) error
}

type CompressorInterface interface {
	Compress(val []byte) ([]byte, error)
	Decompress(val []byte) ([]byte, error)
}
