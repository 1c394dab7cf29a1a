package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name    string
		reg     Registration
		wantErr error
	}{
		{
			name: "valid",
			reg:  Registration{Name: "Lamp", Type: TypeSwitch, Room: "Hall"},
		},
		{
			name: "valid without room",
			reg:  Registration{Name: "Lamp", Type: TypeSwitch},
		},
		{
			name:    "missing name",
			reg:     Registration{Type: TypeSwitch},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name too long",
			reg:     Registration{Name: strings.Repeat("x", maxNameLength+1), Type: TypeSwitch},
			wantErr: ErrInvalidName,
		},
		{
			name:    "unknown type",
			reg:     Registration{Name: "Lamp", Type: "blender"},
			wantErr: ErrInvalidDeviceType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegistration(tt.reg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRegistration() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRegistration() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeviceType(t *testing.T) {
	for _, dt := range AllDeviceTypes() {
		if err := ValidateDeviceType(dt); err != nil {
			t.Errorf("ValidateDeviceType(%q) error = %v", dt, err)
		}
	}
	if err := ValidateDeviceType("hologram"); !errors.Is(err, ErrInvalidDeviceType) {
		t.Errorf("ValidateDeviceType(hologram) error = %v, want ErrInvalidDeviceType", err)
	}
}

func TestValidateStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		if err := ValidateStatus(s); err != nil {
			t.Errorf("ValidateStatus(%q) error = %v", s, err)
		}
	}
	if err := ValidateStatus("hibernating"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ValidateStatus(hibernating) error = %v, want ErrInvalidStatus", err)
	}
}

func TestValidateControlKind(t *testing.T) {
	for _, k := range AllControlKinds() {
		if err := ValidateControlKind(k); err != nil {
			t.Errorf("ValidateControlKind(%q) error = %v", k, err)
		}
	}
	if err := ValidateControlKind("dial"); !errors.Is(err, ErrInvalidControlKind) {
		t.Errorf("ValidateControlKind(dial) error = %v, want ErrInvalidControlKind", err)
	}
}

func TestValidateDiscovery(t *testing.T) {
	tests := []struct {
		name    string
		ann     Discovery
		wantErr error
	}{
		{
			name: "valid",
			ann:  Discovery{DeviceID: "dev-1", Name: "Sensor", Type: TypeSensor},
		},
		{
			name:    "missing device ID",
			ann:     Discovery{Name: "Sensor", Type: TypeSensor},
			wantErr: ErrInvalidDevice,
		},
		{
			name:    "missing name",
			ann:     Discovery{DeviceID: "dev-1", Type: TypeSensor},
			wantErr: ErrInvalidName,
		},
		{
			name:    "unknown type",
			ann:     Discovery{DeviceID: "dev-1", Name: "Sensor", Type: "orb"},
			wantErr: ErrInvalidDeviceType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDiscovery(tt.ann)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDiscovery() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDiscovery() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCommandValue(t *testing.T) {
	minVal, maxVal := 0.0, 100.0

	switchCtl := Control{Key: "power", Kind: ControlSwitch}
	sliderCtl := Control{Key: "brightness", Kind: ControlSlider, Min: &minVal, Max: &maxVal}
	selectCtl := Control{Key: "mode", Kind: ControlSelect, Options: []string{"heat", "cool"}}
	inputCtl := Control{Key: "label", Kind: ControlInput}

	tests := []struct {
		name    string
		control Control
		value   any
		wantOK  bool
	}{
		{name: "switch accepts true", control: switchCtl, value: true, wantOK: true},
		{name: "switch accepts false", control: switchCtl, value: false, wantOK: true},
		{name: "switch rejects string", control: switchCtl, value: "on", wantOK: false},
		{name: "switch rejects number", control: switchCtl, value: 1, wantOK: false},
		{name: "slider accepts float", control: sliderCtl, value: 50.0, wantOK: true},
		{name: "slider accepts int", control: sliderCtl, value: 50, wantOK: true},
		{name: "slider accepts min boundary", control: sliderCtl, value: 0.0, wantOK: true},
		{name: "slider accepts max boundary", control: sliderCtl, value: 100.0, wantOK: true},
		{name: "slider rejects above max", control: sliderCtl, value: 100.5, wantOK: false},
		{name: "slider rejects below min", control: sliderCtl, value: -0.5, wantOK: false},
		{name: "slider rejects string", control: sliderCtl, value: "half", wantOK: false},
		{name: "select accepts listed option", control: selectCtl, value: "heat", wantOK: true},
		{name: "select rejects unlisted option", control: selectCtl, value: "defrost", wantOK: false},
		{name: "select rejects non-string", control: selectCtl, value: 3, wantOK: false},
		{name: "input accepts any string", control: inputCtl, value: "anything at all", wantOK: true},
		{name: "input accepts number", control: inputCtl, value: 42, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := validateCommandValue(tt.control, tt.value)
			if ok != tt.wantOK {
				t.Errorf("validateCommandValue(%v) = %v (%q), want ok=%v", tt.value, ok, msg, tt.wantOK)
			}
			if !ok && msg == "" {
				t.Error("rejection must carry a message")
			}
		})
	}
}

func TestDefaultControls(t *testing.T) {
	tests := []struct {
		deviceType DeviceType
		wantKeys   []string
	}{
		{TypeSwitch, []string{"power"}},
		{TypeDimmer, []string{"power", "brightness"}},
		{TypeThermostat, []string{"temperature"}},
		{TypeLock, []string{"locked"}},
		{TypeSensor, nil},
		{TypeCamera, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.deviceType), func(t *testing.T) {
			controls := DefaultControls(tt.deviceType)
			if len(controls) != len(tt.wantKeys) {
				t.Fatalf("got %d controls, want %d", len(controls), len(tt.wantKeys))
			}
			for i, key := range tt.wantKeys {
				if controls[i].Key != key {
					t.Errorf("control[%d].Key = %q, want %q", i, controls[i].Key, key)
				}
			}
		})
	}

	// Slider defaults carry their range.
	dimmer := DefaultControls(TypeDimmer)
	b := dimmer[1]
	if b.Min == nil || b.Max == nil || *b.Min != 0 || *b.Max != 100 {
		t.Errorf("brightness range = [%v, %v], want [0, 100]", b.Min, b.Max)
	}
	thermo := DefaultControls(TypeThermostat)[0]
	if thermo.Min == nil || thermo.Max == nil || *thermo.Min != 5 || *thermo.Max != 35 {
		t.Errorf("temperature range = [%v, %v], want [5, 35]", thermo.Min, thermo.Max)
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty IDs")
	}
	if a == b {
		t.Error("consecutive IDs must differ")
	}
}
