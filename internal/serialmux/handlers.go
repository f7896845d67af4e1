package serialmux

import (
	"fmt"
	"log"

	"github.com/banshee-data/ld2415h/internal/db"
	"github.com/banshee-data/ld2415h/internal/ld2415h"
)

// HandleVelocity stores a decoded velocity reading.
func HandleVelocity(d *db.DB, sessionID string, v ld2415h.Velocity) error {
	return d.RecordReading(sessionID, v)
}

// HandleConfigResponse stores a snapshot of the mirrored configuration and
// dumps it to the log.
func HandleConfigResponse(d *db.DB, sessionID string, e ld2415h.Event) error {
	e.Config.Dump(log.Printf)
	return d.RecordConfig(sessionID, *e.Config, e.Time)
}

// HandleEvent persists a decoded radar event.
func HandleEvent(d *db.DB, sessionID string, e ld2415h.Event) error {
	switch e.Kind {
	case ld2415h.FrameVelocity:
		if e.Velocity == nil {
			return fmt.Errorf("velocity event without a reading: %q", e.Raw)
		}
		if err := HandleVelocity(d, sessionID, *e.Velocity); err != nil {
			return fmt.Errorf("failed to handle velocity event: %v", err)
		}
	case ld2415h.FrameFirmware, ld2415h.FrameConfig:
		if e.Config == nil {
			return fmt.Errorf("%s event without a config: %q", e.Kind, e.Raw)
		}
		if err := HandleConfigResponse(d, sessionID, e); err != nil {
			return fmt.Errorf("failed to handle config response: %v", err)
		}
	default:
		log.Printf("unknown event type: %s", e.Raw)
	}
	return nil
}
