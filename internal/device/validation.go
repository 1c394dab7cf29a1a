package device

import (
	"fmt"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100

	// Size limits on announced collections. Discovery payloads come from
	// an untrusted source, so cap them to prevent memory exhaustion.
	maxControls     = 50
	maxProperties   = 100
	maxCapabilities = 50
)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validDeviceTypes  map[DeviceType]struct{}
	validStatuses     map[Status]struct{}
	validControlKinds map[ControlKind]struct{}
)

func init() {
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}

	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}

	validControlKinds = make(map[ControlKind]struct{}, len(AllControlKinds()))
	for _, k := range AllControlKinds() {
		validControlKinds[k] = struct{}{}
	}
}

// ValidateRegistration checks a registration request before a device is created.
func ValidateRegistration(reg Registration) error {
	if err := ValidateName(reg.Name); err != nil {
		return err
	}
	return ValidateDeviceType(reg.Type)
}

// ValidateName checks a device name is non-empty and within length limits.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateDeviceType checks if a device type is valid.
func ValidateDeviceType(t DeviceType) error {
	if _, ok := validDeviceTypes[t]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
}

// ValidateStatus checks if a status value is valid.
func ValidateStatus(s Status) error {
	if _, ok := validStatuses[s]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ValidateControlKind checks if a control kind is valid.
func ValidateControlKind(k ControlKind) error {
	if _, ok := validControlKinds[k]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidControlKind, k)
}

// ValidateDiscovery checks an inbound discovery announcement.
// Discovery payloads originate from untrusted firmware, so collection
// sizes are bounded as well as field values.
func ValidateDiscovery(ann Discovery) error {
	if ann.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}
	if err := ValidateName(ann.Name); err != nil {
		return err
	}
	if err := ValidateDeviceType(ann.Type); err != nil {
		return err
	}
	if len(ann.Controls) > maxControls {
		return fmt.Errorf("%w: controls exceed max (%d)", ErrInvalidDevice, maxControls)
	}
	if len(ann.Properties) > maxProperties {
		return fmt.Errorf("%w: properties exceed max (%d)", ErrInvalidDevice, maxProperties)
	}
	if len(ann.Capabilities) > maxCapabilities {
		return fmt.Errorf("%w: capabilities exceed max (%d)", ErrInvalidDevice, maxCapabilities)
	}
	for _, c := range ann.Controls {
		if c.Key == "" {
			return fmt.Errorf("%w: control key is required", ErrInvalidDevice)
		}
		if err := ValidateControlKind(c.Kind); err != nil {
			return err
		}
	}
	return nil
}

// validateCommandValue checks a command value against the control's kind.
// The returned message is user-facing and ends up in the CommandResult.
func validateCommandValue(control Control, value any) (ok bool, message string) {
	switch control.Kind {
	case ControlSwitch:
		if _, isBool := value.(bool); !isBool {
			return false, fmt.Sprintf("control %q expects a boolean value", control.Key)
		}
		return true, ""

	case ControlSlider:
		num, isNum := numericValue(value)
		if !isNum {
			return false, fmt.Sprintf("control %q expects a numeric value", control.Key)
		}
		if control.Min != nil && num < *control.Min {
			return false, fmt.Sprintf("value %v below minimum %v for control %q", num, *control.Min, control.Key)
		}
		if control.Max != nil && num > *control.Max {
			return false, fmt.Sprintf("value %v above maximum %v for control %q", num, *control.Max, control.Key)
		}
		return true, ""

	case ControlSelect:
		s, isStr := value.(string)
		if !isStr {
			return false, fmt.Sprintf("control %q expects one of its options", control.Key)
		}
		for _, opt := range control.Options {
			if opt == s {
				return true, ""
			}
		}
		return false, fmt.Sprintf("value %q is not an option of control %q", s, control.Key)

	case ControlInput:
		// Free-form, anything goes.
		return true, ""
	}

	return false, fmt.Sprintf("control %q has unknown kind %q", control.Key, control.Kind)
}

// numericValue normalises the numeric types JSON decoding and Go callers
// produce into a float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// DefaultControls returns the control set derived from a device type at
// creation. Sensors and cameras are read-only and start with none.
func DefaultControls(t DeviceType) []Control {
	switch t {
	case TypeSwitch:
		return []Control{
			{Key: "power", Kind: ControlSwitch, Label: "Power"},
		}
	case TypeDimmer:
		minLevel, maxLevel := 0.0, 100.0
		return []Control{
			{Key: "power", Kind: ControlSwitch, Label: "Power"},
			{Key: "brightness", Kind: ControlSlider, Label: "Brightness", Min: &minLevel, Max: &maxLevel},
		}
	case TypeThermostat:
		minTemp, maxTemp := 5.0, 35.0
		return []Control{
			{Key: "temperature", Kind: ControlSlider, Label: "Target Temperature", Min: &minTemp, Max: &maxTemp},
		}
	case TypeLock:
		return []Control{
			{Key: "locked", Kind: ControlSwitch, Label: "Locked"},
		}
	case TypeSensor, TypeCamera:
		return nil
	}
	return nil
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
