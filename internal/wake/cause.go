package wake

// RawCause is the wake-cause code reported by the SoC, numbered like the
// ESP32's esp_sleep_wakeup_cause_t.
type RawCause uint8

const (
	RawUndefined RawCause = iota
	RawAll
	RawExt0
	RawExt1
	RawTimer
	RawTouchpad
	RawULP
	RawGPIO
	RawUART
)

// Cause is why the node is running.
type Cause int

const (
	// ColdBoot is a start that did not come out of deep sleep.
	ColdBoot Cause = iota
	// Manual is a wake from the external push button.
	Manual
	// Timer is a wake from the deep-sleep timer.
	Timer
	// Other covers every remaining deep-sleep wake source.
	Other
)

func (c Cause) String() string {
	switch c {
	case ColdBoot:
		return "cold_boot"
	case Manual:
		return "manual"
	case Timer:
		return "timer"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}

// Classify maps a raw wake-cause code to a Cause.
func Classify(raw RawCause) Cause {
	switch raw {
	case RawUndefined:
		return ColdBoot
	case RawExt0:
		return Manual
	case RawTimer:
		return Timer
	default:
		return Other
	}
}
