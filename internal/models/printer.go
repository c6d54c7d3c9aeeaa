package models

import "time"

// Gcode states reported by the printer telemetry feed.
const (
	GcodeRunning = "RUNNING"
	GcodeFinish  = "FINISH"
	GcodeIdle    = "IDLE"
	GcodeFailed  = "FAILED"
	GcodePause   = "PAUSE"
)

// PrinterType is a class of interchangeable machines.
type PrinterType struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	BedX       int       `json:"bed_x_mm"`
	BedY       int       `json:"bed_y_mm"`
	BedZ       int       `json:"bed_z_mm"`
	Multicolor bool      `json:"multicolor"`
	CreatedAt  time.Time `json:"created_at"`
}

// Printer is one physical machine. The scheduler only reads its identity and type.
type Printer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SerialNumber  string    `json:"serial_number"`
	PrinterTypeID *string   `json:"printer_type_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PrinterState is a telemetry snapshot for one printer.
type PrinterState struct {
	PrinterID   string    `json:"printer_id"`
	GcodeState  string    `json:"gcode_state"`
	CurrentFile string    `json:"current_file,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}
