package serialmux

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Commands understood by the tracking bridge.
const (
	TiltCommand        = "TILT"
	CalibrationCommand = "CAL"
)

// Tilt motor range in degrees.
const (
	MinTilt = -31
	MaxTilt = 31
)

// ValidateCommand checks a bridge command line before it is written to the
// port. Accepted forms are HELLO, TILT <degrees> and CAL <id> <base64>.
func ValidateCommand(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	switch fields[0] {
	case HelloCommand:
		if len(fields) != 1 {
			return fmt.Errorf("%s takes no arguments", HelloCommand)
		}
		return nil
	case TiltCommand:
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <degrees>", TiltCommand)
		}
		deg, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid tilt %q", fields[1])
		}
		if deg < MinTilt || deg > MaxTilt {
			return fmt.Errorf("tilt %d out of range [%d, %d]", deg, MinTilt, MaxTilt)
		}
		return nil
	case CalibrationCommand:
		if len(fields) != 3 {
			return fmt.Errorf("usage: %s <id> <base64>", CalibrationCommand)
		}
		if id, err := strconv.Atoi(fields[1]); err != nil || id <= 0 {
			return fmt.Errorf("invalid person id %q", fields[1])
		}
		if _, err := base64.StdEncoding.DecodeString(fields[2]); err != nil {
			return fmt.Errorf("calibration blob is not base64: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
